package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/mzansi-solutions/farm-alert-service/internal/validation"
)

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "dial tcp 10.0.0.1:443: i/o" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

var _ net.Error = fakeNetError{}

// TestCategorizeError verifies sentinel, typed and message-based classification
// of provider errors.
func TestCategorizeError(t *testing.T) {
	var syntaxErr error = &json.SyntaxError{Offset: 3}

	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled", context.Canceled, ErrorCategoryCanceled},
		{"invalid key wrapped", fmt.Errorf("current: %w", ErrInvalidAPIKey), ErrorCategoryInvalidAPIKey},
		{"location not found", ErrLocationNotFound, ErrorCategoryLocationNotFound},
		{"rate limited", ErrRateLimited, ErrorCategoryRateLimited},
		{"exhausted retries keeps cause", fmt.Errorf("exhausted retries: %w", ErrUpstreamFailure), ErrorCategoryUpstream5xx},
		{"circuit open", fmt.Errorf("forecast: %w", ErrCircuitOpen), ErrorCategoryCircuitOpen},
		{"days out of range", fmt.Errorf("%w: days must be 1..16", validation.ErrInvalidDays), ErrorCategoryValidation},
		{"coordinates out of range", validation.ErrCoordinatesOutOfRange, ErrorCategoryValidation},
		{"net timeout", fakeNetError{timeout: true}, ErrorCategoryTimeout},
		{"net failure", fmt.Errorf("get current: %w", fakeNetError{}), ErrorCategoryNetwork},
		{"json syntax", fmt.Errorf("parse response: %w", syntaxErr), ErrorCategoryParsing},
		{"connection refused text", errors.New("connection refused"), ErrorCategoryNetwork},
		{"timeout text", errors.New("Client.Timeout exceeded while awaiting headers"), ErrorCategoryTimeout},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}
