// Package errs is the failure taxonomy of the order core. Business
// rejections are *Error values with a Kind and a Reason; infrastructure
// failures are *Error values of KindTransient wrapping the driver cause.
package errs

import (
	"errors"
	"fmt"
)

// Kind groups failures by how a caller should react.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNotFound
	KindUnauthorized
	KindInvalidState
	KindInsufficient
	KindAlreadyExists
	KindInvalidInput
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindUnauthorized:
		return "Unauthorized"
	case KindInvalidState:
		return "InvalidState"
	case KindInsufficient:
		return "InsufficientResource"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindInvalidInput:
		return "InvalidInput"
	case KindTransient:
		return "TransientStoreFailure"
	}
	return "Unknown"
}

// Reason is the command-level failure a caller pattern-matches on.
type Reason string

const (
	UserNotFound      Reason = "UserNotFound"
	StoreNotFound     Reason = "StoreNotFound"
	BookNotFound      Reason = "BookNotFound"
	OrderNotFound     Reason = "OrderNotFound"
	UserHasNoOrders   Reason = "UserHasNoOrders"
	StoreHasNoOrders  Reason = "StoreHasNoOrders"
	NotAuthorized     Reason = "Unauthorized"
	WrongPassword     Reason = "WrongPassword"
	StatusNotAllowed  Reason = "StatusNotAllowed"
	InsufficientStock Reason = "InsufficientStock"
	InsufficientFunds Reason = "InsufficientFunds"
	UserExists        Reason = "UserExists"
	StoreExists       Reason = "StoreExists"
	BookExists        Reason = "BookExists"
	BadInput          Reason = "InvalidInput"
	StoreFailure      Reason = "StoreFailure"
)

var reasonKind = map[Reason]Kind{
	UserNotFound:      KindNotFound,
	StoreNotFound:     KindNotFound,
	BookNotFound:      KindNotFound,
	OrderNotFound:     KindNotFound,
	UserHasNoOrders:   KindNotFound,
	StoreHasNoOrders:  KindNotFound,
	NotAuthorized:     KindUnauthorized,
	WrongPassword:     KindUnauthorized,
	StatusNotAllowed:  KindInvalidState,
	InsufficientStock: KindInsufficient,
	InsufficientFunds: KindInsufficient,
	UserExists:        KindAlreadyExists,
	StoreExists:       KindAlreadyExists,
	BookExists:        KindAlreadyExists,
	BadInput:          KindInvalidInput,
	StoreFailure:      KindTransient,
}

// numeric codes used by the bookstore wire protocol
var reasonCode = map[Reason]int{
	UserNotFound:      511,
	UserExists:        512,
	StoreNotFound:     513,
	StoreExists:       514,
	BookNotFound:      515,
	BookExists:        516,
	InsufficientStock: 517,
	OrderNotFound:     518,
	InsufficientFunds: 519,
	StatusNotAllowed:  520,
	UserHasNoOrders:   521,
	StoreHasNoOrders:  522,
	NotAuthorized:     401,
	WrongPassword:     401,
	BadInput:          400,
	StoreFailure:      528,
}

type Error struct {
	Kind   Kind
	Reason Reason
	ID     string // entity the failure is about, if any
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Reason)
	if e.ID != "" {
		msg += " " + e.ID
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Code is the bookstore protocol code for the failure.
func (e *Error) Code() int {
	if c, ok := reasonCode[e.Reason]; ok {
		return c
	}
	return 530
}

func newErr(r Reason, id, detail string) *Error {
	return &Error{Kind: reasonKind[r], Reason: r, ID: id, Detail: detail}
}

func NotFound(r Reason, id string) *Error { return newErr(r, id, "does not exist") }

func Unauthorized(detail string) *Error { return newErr(NotAuthorized, "", detail) }

func BadPassword(userID string) *Error { return newErr(WrongPassword, userID, "password mismatch") }

func NotAllowed(orderID, status string) *Error {
	return newErr(StatusNotAllowed, orderID, "not allowed in status "+status)
}

func LowStock(bookID string) *Error { return newErr(InsufficientStock, bookID, "stock level low") }

func LowFunds(userID string) *Error { return newErr(InsufficientFunds, userID, "balance too low") }

func Exists(r Reason, id string) *Error { return newErr(r, id, "already exists") }

func NoOrders(r Reason, id string) *Error { return newErr(r, id, "has no orders") }

func Invalid(format string, args ...any) *Error {
	return newErr(BadInput, "", fmt.Sprintf(format, args...))
}

// Transient wraps an infrastructure failure. Business errors pass through
// untouched so a rejection raised inside a transaction keeps its reason.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindTransient, Reason: StoreFailure, Detail: op, Err: err}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Is reports whether err is an *Error with reason r.
func Is(err error, r Reason) bool { return ReasonOf(err) == r }
