package client

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"github.com/mzansi-solutions/farm-alert-service/internal/validation"
)

// ErrorCategory labels provider errors on weatherApiErrorsTotal.
type ErrorCategory string

const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryCanceled         ErrorCategory = "canceled"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx      ErrorCategory = "upstream_5xx"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryValidation       ErrorCategory = "validation"
	ErrorCategoryCircuitOpen      ErrorCategory = "circuit_open"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// sentinelCategories is checked in order; the first match wins.
var sentinelCategories = []struct {
	err      error
	category ErrorCategory
}{
	{ErrCircuitOpen, ErrorCategoryCircuitOpen},
	{context.DeadlineExceeded, ErrorCategoryTimeout},
	{context.Canceled, ErrorCategoryCanceled},
	{ErrInvalidAPIKey, ErrorCategoryInvalidAPIKey},
	{ErrLocationNotFound, ErrorCategoryLocationNotFound},
	{ErrRateLimited, ErrorCategoryRateLimited},
	{ErrUpstreamFailure, ErrorCategoryUpstream5xx},
	{validation.ErrInvalidDays, ErrorCategoryValidation},
	{validation.ErrCoordinatesOutOfRange, ErrorCategoryValidation},
}

// CategorizeError maps an error to a stable ErrorCategory. Wrapped sentinels and
// typed errors are matched before falling back to the message text.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	for _, s := range sentinelCategories {
		if errors.Is(err, s.err) {
			return s.category
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryNetwork
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return ErrorCategoryParsing
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return ErrorCategoryTimeout
	case strings.Contains(msg, "connection"), strings.Contains(msg, "no such host"):
		return ErrorCategoryNetwork
	case strings.Contains(msg, "parse response"), strings.Contains(msg, "unexpected end of json"):
		return ErrorCategoryParsing
	}
	return ErrorCategoryUnknown
}
