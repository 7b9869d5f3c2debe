// Package errors classifies failures of the model, embedding and search
// backends so callers can decide whether to retry, degrade or give up.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Kind is the retry class of a backend failure.
type Kind uint8

const (
	// KindUnknown covers errors nobody classified. They are not retried.
	KindUnknown Kind = iota
	// KindTransient failures may succeed on a later attempt.
	KindTransient
	// KindPermanent failures will fail again with the same input.
	KindPermanent
	// KindUnavailable means the backend is switched off for now, usually by
	// an open circuit breaker. Callers should degrade instead of retrying.
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is a classified backend failure. Message, when set, is a short
// sentence that can be shown to the person asking the question.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s (%v)", e.Message, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Transient marks err as retryable.
func Transient(err error, message string) *Error {
	return &Error{Kind: KindTransient, Message: message, Err: err}
}

// Permanent marks err as not retryable.
func Permanent(err error, message string) *Error {
	return &Error{Kind: KindPermanent, Message: message, Err: err}
}

// Unavailable marks a backend that refuses work for a while.
func Unavailable(err error, message string) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Err: err}
}

// FromStatus classifies err by the HTTP status that produced it. Timeouts,
// rate limits and 5xx are transient; everything else is permanent.
func FromStatus(status int, err error) *Error {
	if err == nil {
		err = fmt.Errorf("http status %d", status)
	}
	kind := KindPermanent
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		kind = KindTransient
	}
	return &Error{Kind: kind, StatusCode: status, Err: err}
}

// Classify returns the Kind of err. The outermost *Error wins. Unclassified
// deadline and network failures count as transient; cancellation belongs to
// the caller and is never retried.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindPermanent
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case isNetworkFailure(err):
		return KindTransient
	}
	return KindUnknown
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool { return Classify(err) == KindTransient }

// IsUnavailable reports whether the backend refused err without trying.
func IsUnavailable(err error) bool { return Classify(err) == KindUnavailable }

// IsPermanent reports whether err should be surfaced as is.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	switch Classify(err) {
	case KindTransient, KindUnavailable:
		return false
	}
	return true
}

// StatusCode returns the HTTP status attached to err, or 0.
func StatusCode(err error) int {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.StatusCode
	}
	return 0
}

func isNetworkFailure(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	return false
}
