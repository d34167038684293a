package rpc

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ahinestrog/bookstore-orders/internal/bookstore"
)

const errorDomain = "bookstore"

// ErrorInfo reasons for FailedPrecondition statuses.
const (
	ReasonInsufficientStock  = "INSUFFICIENT_STOCK"
	ReasonEmptyOrMissingCart = "EMPTY_OR_MISSING_CART"
	ReasonInvalidTransition  = "INVALID_TRANSITION"
)

var reasons = map[string]error{
	ReasonInsufficientStock:  bookstore.ErrInsufficientStock,
	ReasonEmptyOrMissingCart: bookstore.ErrEmptyOrMissingCart,
	ReasonInvalidTransition:  bookstore.ErrInvalidTransition,
}

// toStatus maps a domain error onto a gRPC status.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(interface{ GRPCStatus() *status.Status }); ok {
		return err
	}
	code, reason := codes.Internal, ""
	switch {
	case errors.Is(err, bookstore.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, bookstore.ErrInsufficientStock):
		code, reason = codes.FailedPrecondition, ReasonInsufficientStock
	case errors.Is(err, bookstore.ErrEmptyOrMissingCart):
		code, reason = codes.FailedPrecondition, ReasonEmptyOrMissingCart
	case errors.Is(err, bookstore.ErrInvalidTransition):
		code, reason = codes.FailedPrecondition, ReasonInvalidTransition
	case errors.Is(err, bookstore.ErrInvalidArgument):
		code = codes.InvalidArgument
	case errors.Is(err, bookstore.ErrUpstreamUnavailable):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	st := status.New(code, err.Error())
	if reason != "" {
		if d, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain}); derr == nil {
			st = d
		}
	}
	return st.Err()
}

// remoteError keeps the server's message while matching the local kind.
type remoteError struct {
	msg  string
	kind error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.kind }

// fromStatus turns a client-side status back into a domain error. Anything
// the caller cannot act on becomes ErrUpstreamUnavailable.
func fromStatus(op string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return bookstore.Unavailable(op, err)
	}
	var kind error
	switch st.Code() {
	case codes.NotFound:
		kind = bookstore.ErrNotFound
	case codes.InvalidArgument:
		kind = bookstore.ErrInvalidArgument
	case codes.FailedPrecondition:
		for _, d := range st.Details() {
			if info, ok := d.(*errdetails.ErrorInfo); ok {
				kind = reasons[info.GetReason()]
			}
		}
	}
	if kind == nil {
		return bookstore.Unavailable(op, err)
	}
	return &remoteError{msg: st.Message(), kind: kind}
}
