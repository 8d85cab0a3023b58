package httpx

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/errs"
	"github.com/ariefcatur/go-bookstore-orders/internal/lifecycle"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/redisx"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Idempotency interface {
	Claim(ctx context.Context, scope, key string) (bool, []byte, error)
	Complete(ctx context.Context, scope, key string, response []byte) error
	Release(ctx context.Context, scope, key string) error
}

type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.CachedStatus, bool, error)
}

// Handler exposes the order engine over the bookstore HTTP protocol. Idem
// and Status are optional.
type Handler struct {
	Engine *lifecycle.Engine
	Idem   Idempotency
	Status StatusCache
	Log    *zap.Logger
}

type action func(r *http.Request) (payload, error)

func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/register", h.serve(h.register))

	r.Route("/buyer", func(r chi.Router) {
		r.Post("/new_order", h.idempotent("new_order", h.newOrder))
		r.Post("/payment", h.idempotent("payment", h.payment))
		r.Post("/add_funds", h.idempotent("add_funds", h.addFunds))
		r.Post("/received", h.serve(h.received))
		r.Post("/cancel_order", h.serve(h.cancelOrder))
		r.Post("/search_order", h.serve(h.searchOrder))
	})

	r.Route("/seller", func(r chi.Router) {
		r.Post("/create_store", h.serve(h.createStore))
		r.Post("/add_book", h.serve(h.addBook))
		r.Post("/add_stock_level", h.serve(h.addStockLevel))
		r.Post("/set_price", h.serve(h.setPrice))
		r.Post("/delivered", h.serve(h.delivered))
		r.Post("/seller_search", h.serve(h.sellerSearch))
	})

	r.Get("/orders/{id}", h.serve(h.getOrder))
	r.Get("/orders/{id}/status", h.serve(h.orderStatus))
}

func (h *Handler) serve(a action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, body := render(a(r))
		writeJSON(w, code, body)
	}
}

type stored struct {
	Status      int             `json:"status"`
	Body        json.RawMessage `json:"body"`
	Fingerprint string          `json:"fingerprint"`
}

const maxIdempotentBody = 1 << 20

// idempotent replays the stored response for a repeated Idempotency-Key.
// Keys are scoped to the calling user_id, and a replay must carry the same
// body as the original request. Redis trouble degrades to plain execution.
func (h *Handler) idempotent(command string, a action) http.HandlerFunc {
	plain := h.serve(a)
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderIdempotencyKey)
		if h.Idem == nil || key == "" {
			plain(w, r)
			return
		}
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, payload{"code": http.StatusBadRequest, "message": err.Error()})
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))
		var caller struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(raw, &caller); err != nil || caller.UserID == "" {
			// let the action report the malformed body
			plain(w, r)
			return
		}
		sum := sha256.Sum256(raw)
		fingerprint := hex.EncodeToString(sum[:])
		scope := command + ":" + caller.UserID

		ctx := r.Context()
		claimed, prev, err := h.Idem.Claim(ctx, scope, key)
		switch {
		case errors.Is(err, redisx.ErrInFlight):
			writeJSON(w, http.StatusConflict, payload{"code": http.StatusConflict, "message": err.Error()})
			return
		case err != nil:
			h.Log.Warn("idempotency unavailable", zap.String("scope", scope), zap.Error(err))
			plain(w, r)
			return
		case !claimed:
			var s stored
			if err := json.Unmarshal(prev, &s); err == nil {
				if s.Fingerprint != fingerprint {
					writeJSON(w, http.StatusUnprocessableEntity, payload{
						"code":    http.StatusUnprocessableEntity,
						"message": "idempotency key reused with a different request body",
					})
					return
				}
				w.Header().Set("Idempotent-Replayed", "true")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(s.Status)
				_, _ = w.Write(s.Body)
				return
			}
			h.Log.Warn("bad stored response", zap.String("scope", scope), zap.String("key", key))
			plain(w, r)
			return
		}

		code, body := render(a(r))
		resp, _ := json.Marshal(body)
		if code >= http.StatusInternalServerError {
			if err := h.Idem.Release(ctx, scope, key); err != nil {
				h.Log.Warn("idempotency release", zap.Error(err))
			}
		} else {
			rec, _ := json.Marshal(stored{Status: code, Body: resp, Fingerprint: fingerprint})
			if err := h.Idem.Complete(ctx, scope, key, rec); err != nil {
				h.Log.Warn("idempotency complete", zap.Error(err))
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write(resp)
	}
}

// ── auth ──

func (h *Handler) register(r *http.Request) (payload, error) {
	var req struct {
		UserID   string `json:"user_id"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return nil, h.Engine.Register(r.Context(), req.UserID, req.Password)
}

// ── buyer ──

func (h *Handler) newOrder(r *http.Request) (payload, error) {
	var req struct {
		UserID  string        `json:"user_id"`
		StoreID string        `json:"store_id"`
		Books   []orders.Item `json:"books"`
	}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	id, err := h.Engine.PlaceOrder(r.Context(), req.UserID, req.StoreID, req.Books)
	if err != nil {
		return nil, err
	}
	return payload{"order_id": id}, nil
}

func (h *Handler) payment(r *http.Request) (payload, error) {
	var req struct {
		UserID   string `json:"user_id"`
		OrderID  string `json:"order_id"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return nil, h.Engine.Payment(r.Context(), req.UserID, req.Password, req.OrderID)
}

func (h *Handler) addFunds(r *http.Request) (payload, error) {
	var req struct {
		UserID   string `json:"user_id"`
		Password string `json:"password"`
		AddValue int64  `json:"add_value"`
	}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return nil, h.Engine.AddFunds(r.Context(), req.UserID, req.Password, req.AddValue)
}

type orderReq struct {
	UserID  string `json:"user_id"`
	OrderID string `json:"order_id"`
}

func (h *Handler) received(r *http.Request) (payload, error) {
	var req orderReq
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return nil, h.Engine.Receive(r.Context(), req.UserID, req.OrderID)
}

func (h *Handler) cancelOrder(r *http.Request) (payload, error) {
	var req orderReq
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return nil, h.Engine.Cancel(r.Context(), req.UserID, req.OrderID)
}

func (h *Handler) searchOrder(r *http.Request) (payload, error) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	list, err := h.Engine.ListOrders(r.Context(), req.UserID)
	if err != nil {
		return nil, err
	}
	return payload{"orders": list}, nil
}

// ── seller ──

func (h *Handler) createStore(r *http.Request) (payload, error) {
	var req struct {
		UserID  string `json:"user_id"`
		StoreID string `json:"store_id"`
	}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return nil, h.Engine.CreateStore(r.Context(), req.UserID, req.StoreID)
}

func (h *Handler) addBook(r *http.Request) (payload, error) {
	var req struct {
		UserID     string          `json:"user_id"`
		StoreID    string          `json:"store_id"`
		BookInfo   json.RawMessage `json:"book_info"`
		StockLevel int             `json:"stock_level"`
	}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	var head struct {
		ID    string `json:"id"`
		Price int64  `json:"price"`
	}
	if err := json.Unmarshal(req.BookInfo, &head); err != nil {
		return nil, errs.Invalid("book_info: %v", err)
	}
	b := lifecycle.Book{ID: head.ID, Price: head.Price, Info: req.BookInfo}
	return nil, h.Engine.AddBook(r.Context(), req.UserID, req.StoreID, b, req.StockLevel)
}

func (h *Handler) addStockLevel(r *http.Request) (payload, error) {
	var req struct {
		UserID        string `json:"user_id"`
		StoreID       string `json:"store_id"`
		BookID        string `json:"book_id"`
		AddStockLevel int    `json:"add_stock_level"`
	}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return nil, h.Engine.AddStockLevel(r.Context(), req.UserID, req.StoreID, req.BookID, req.AddStockLevel)
}

func (h *Handler) setPrice(r *http.Request) (payload, error) {
	var req struct {
		UserID  string `json:"user_id"`
		StoreID string `json:"store_id"`
		BookID  string `json:"book_id"`
		Price   int64  `json:"price"`
	}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return nil, h.Engine.SetPrice(r.Context(), req.UserID, req.StoreID, req.BookID, req.Price)
}

func (h *Handler) delivered(r *http.Request) (payload, error) {
	var req orderReq
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	return nil, h.Engine.Deliver(r.Context(), req.UserID, req.OrderID)
}

func (h *Handler) sellerSearch(r *http.Request) (payload, error) {
	var req struct {
		UserID  string `json:"user_id"`
		StoreID string `json:"store_id"`
	}
	if err := decode(r, &req); err != nil {
		return nil, err
	}
	if err := h.Engine.CheckOwner(r.Context(), req.UserID, req.StoreID); err != nil {
		return nil, err
	}
	list, err := h.Engine.ListStoreOrders(r.Context(), req.StoreID)
	if err != nil {
		return nil, err
	}
	return payload{"orders": list}, nil
}

// ── lookups ──

func (h *Handler) getOrder(r *http.Request) (payload, error) {
	d, err := h.Engine.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	return payload{"order": d}, nil
}

// orderStatus answers from the projected cache when it can.
func (h *Handler) orderStatus(r *http.Request) (payload, error) {
	id := chi.URLParam(r, "id")
	if h.Status != nil {
		cs, ok, err := h.Status.Get(r.Context(), id)
		if err != nil {
			h.Log.Warn("status cache", zap.String("order_id", id), zap.Error(err))
		}
		// UNPAID entries may have lapsed; only the engine applies expiry
		if ok && cs.Status != orders.StatusUnpaid.String() {
			return payload{"order_id": id, "status": cs.Status, "updated_at": cs.UpdatedAt, "cached": true}, nil
		}
	}
	d, err := h.Engine.GetOrder(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return payload{"order_id": id, "status": d.Status, "cached": false}, nil
}
