// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package gatewayerr defines the error taxonomy shared by the provider,
// proxy and server packages. Every error surfaced to a caller maps to a
// stable kind string and an HTTP status code, and is serialized as
// {"error":{"message":...,"type":...}}.
package gatewayerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a failure class. The string value is what callers see in
// the "type" field of an error response body.
type Kind string

const (
	KindUnsupportedProvider    Kind = "UnsupportedProvider"
	KindInvalidMethod          Kind = "InvalidMethod"
	KindInvalidHeader          Kind = "InvalidHeader"
	KindInvalidRequestFormat   Kind = "InvalidRequestFormat"
	KindInvalidHeaderValue     Kind = "InvalidHeaderValue"
	KindUnsupportedModel       Kind = "UnsupportedModel"
	KindJSONParseError         Kind = "JsonParseError"
	KindRequestError           Kind = "RequestError"
	KindMissingAPIKey          Kind = "MissingApiKey"
	KindInvalidStatus          Kind = "InvalidStatus"
	KindUpstreamRequestFailure Kind = "UpstreamRequestFailure"
	KindIOError                Kind = "IoError"
	KindAWSSigningError        Kind = "AwsSigningError"
	KindAWSParamsError         Kind = "AwsParamsError"
	KindEventStreamError       Kind = "EventStreamError"
	KindHTTPBuildError         Kind = "HttpBuildError"
	KindJSONSerializeError     Kind = "JsonSerializeError"
)

// Error carries a taxonomy kind alongside a human-readable message and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// New returns an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf returns an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// StatusCode maps the kind to the HTTP status returned to the caller.
// Provider-transport failures are 502, not 500.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindUnsupportedProvider, KindInvalidMethod, KindInvalidHeader,
		KindInvalidRequestFormat, KindInvalidHeaderValue, KindUnsupportedModel,
		KindJSONParseError, KindRequestError:
		return http.StatusBadRequest
	case KindMissingAPIKey:
		return http.StatusUnauthorized
	case KindInvalidStatus, KindUpstreamRequestFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// AsError converts an arbitrary error into an *Error, defaulting unknown
// errors to the IoError kind.
func AsError(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return &Error{Kind: KindIOError, Message: err.Error(), cause: err}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    Kind   `json:"type"`
}

// WriteJSON writes err as the canonical error response body with the
// status code derived from its kind.
func WriteJSON(w http.ResponseWriter, err error) {
	ge := AsError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ge.StatusCode())
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Message: ge.Message, Type: ge.Kind}})
}
