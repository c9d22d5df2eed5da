package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// Kind classifies matching and review failures.
type Kind string

const (
	KindNotFound         Kind = "not_found"
	KindInvalidSelection Kind = "invalid_selection"
	KindDataConsistency  Kind = "data_consistency"
	KindModelUnavailable Kind = "model_unavailable"
)

var (
	ErrNotFound         = &MatchError{Kind: KindNotFound, Message: "not found"}
	ErrInvalidSelection = &MatchError{Kind: KindInvalidSelection, Message: "invalid selection"}
	ErrDataConsistency  = &MatchError{Kind: KindDataConsistency, Message: "data consistency error"}
	ErrModelUnavailable = &MatchError{Kind: KindModelUnavailable, Message: "model unavailable"}
)

type MatchError struct {
	Kind      Kind
	Message   string
	ListingID *int64
	ProductID *int64
	cause     error
}

func newError(kind Kind, format string, args ...any) *MatchError {
	return &MatchError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *MatchError {
	return newError(KindNotFound, format, args...)
}

func InvalidSelection(format string, args ...any) *MatchError {
	return newError(KindInvalidSelection, format, args...)
}

func DataConsistency(format string, args ...any) *MatchError {
	return newError(KindDataConsistency, format, args...)
}

// ModelUnavailable wraps the load failure of an encoder or reranker model.
func ModelUnavailable(cause error, format string, args ...any) *MatchError {
	e := newError(KindModelUnavailable, format, args...)
	e.cause = cause
	return e
}

func (e *MatchError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *MatchError) Unwrap() error {
	return e.cause
}

// Is matches any MatchError of the same kind, so callers can test against the sentinels.
func (e *MatchError) Is(target error) bool {
	t, ok := target.(*MatchError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *MatchError) WithListing(id int64) *MatchError {
	e.ListingID = &id
	return e
}

func (e *MatchError) WithProduct(id int64) *MatchError {
	e.ProductID = &id
	return e
}

func (e *MatchError) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidSelection:
		return http.StatusUnprocessableEntity
	case KindModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (e *MatchError) ToHTTPError() *httperror.HTTPError {
	herr := httperror.NewHTTPError(e.StatusCode(), e.Error()).AddMetaValue("kind", string(e.Kind))
	if e.ListingID != nil {
		herr = herr.AddMetaValue("listing_id", *e.ListingID)
	}
	if e.ProductID != nil {
		herr = herr.AddMetaValue("product_id", *e.ProductID)
	}
	return herr
}

// AsMatchError extracts a MatchError from an error chain.
func AsMatchError(err error) (*MatchError, bool) {
	var me *MatchError
	if stderrors.As(err, &me) {
		return me, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	me, ok := AsMatchError(err)
	return ok && me.Kind == kind
}
