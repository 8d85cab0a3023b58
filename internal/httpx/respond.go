package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-bookstore-orders/internal/errs"
)

type payload map[string]any

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// render turns an action result into the bookstore response shape:
// {"code": ..., "message": ..., ...payload}.
func render(p payload, err error) (int, payload) {
	if err == nil {
		out := payload{"code": http.StatusOK, "message": "ok"}
		for k, v := range p {
			out[k] = v
		}
		return http.StatusOK, out
	}
	var e *errs.Error
	if !errors.As(err, &e) {
		e = errs.Transient("request", err).(*errs.Error)
	}
	msg := e.Error()
	if e.Kind == errs.KindTransient {
		msg = "store failure"
	}
	return statusFor(e.Kind), payload{"code": e.Code(), "message": msg}
}

func statusFor(k errs.Kind) int {
	switch k {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindUnauthorized:
		return http.StatusUnauthorized
	case errs.KindInvalidState, errs.KindInsufficient, errs.KindAlreadyExists:
		return http.StatusConflict
	case errs.KindInvalidInput:
		return http.StatusBadRequest
	case errs.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Invalid("invalid json: %v", err)
	}
	return nil
}
