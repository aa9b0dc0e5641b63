// Package apperr holds the error taxonomy shared by the engine, the
// datastore and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func NotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// DatastoreError wraps a failed storage call. Its message is logged, never
// returned to API clients.
type DatastoreError struct {
	Op  string
	Err error
}

func (e *DatastoreError) Error() string {
	return "datastore " + e.Op + ": " + e.Err.Error()
}

func (e *DatastoreError) Unwrap() error { return e.Err }

func Datastore(op string, err error) error {
	if err == nil {
		return nil
	}
	var ds *DatastoreError
	if errors.As(err, &ds) {
		return err
	}
	return &DatastoreError{Op: op, Err: err}
}

type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// StreamError terminates a single push connection.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string { return "stream: " + e.Err.Error() }

func (e *StreamError) Unwrap() error { return e.Err }

// Status maps an error to the HTTP status code clients see.
func Status(err error) int {
	var (
		ve *ValidationError
		nf *NotFoundError
		ce *ConflictError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &ce):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message safe to expose to clients.
func PublicMessage(err error, fallback string) string {
	switch Status(err) {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict:
		return err.Error()
	}
	return fallback
}
