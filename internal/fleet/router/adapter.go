package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// HandlerFunc handles the raw payload of one routed message.
type HandlerFunc func(ctx context.Context, robotID string, payload []byte) error

// TypedHandlerFunc handles a decoded payload.
type TypedHandlerFunc[T any] func(ctx context.Context, robotID string, msg *T) error

// MalformedError marks a payload that could not be decoded or failed validation.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string { return "malformed payload: " + e.Err.Error() }

func (e *MalformedError) Unwrap() error { return e.Err }

// validator is implemented by payloads with required fields.
type validator interface {
	validate() error
}

// JSONAdapter decodes the payload into T before calling handler. Unknown
// fields are ignored so robots can add fields without breaking the fleet.
func JSONAdapter[T any](handler TypedHandlerFunc[T]) HandlerFunc {
	return func(ctx context.Context, robotID string, payload []byte) error {
		msg := new(T)

		if len(bytes.TrimSpace(payload)) > 0 {
			if err := json.Unmarshal(payload, msg); err != nil {
				return &MalformedError{Err: fmt.Errorf("json unmarshal failed: %w", err)}
			}
		}
		if v, ok := any(msg).(validator); ok {
			if err := v.validate(); err != nil {
				return &MalformedError{Err: err}
			}
		}

		return handler(ctx, robotID, msg)
	}
}
