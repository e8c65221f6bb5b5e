// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Sentinel errors for classifying provider failures.
var (
	// ErrAuthFailed is returned for 401 and 403 responses.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrInsufficientCredits is returned for 402 responses.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrModelNotFound is returned for 404 responses.
	ErrModelNotFound = errors.New("model not found")

	// ErrRateLimited is returned for 429 responses.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmptyResponse is returned when a completion carries no choices.
	ErrEmptyResponse = errors.New("empty response from provider")

	// ErrInvalidRequest is returned before any network call when the
	// request is missing its endpoint or model.
	ErrInvalidRequest = errors.New("invalid request")
)

// APIError is a non-2xx response from the provider.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.Status, e.Code, msg)
	}
	return fmt.Sprintf("provider error %d: %s", e.Status, msg)
}

// Is maps the status code onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuthFailed:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrInsufficientCredits:
		return e.Status == http.StatusPaymentRequired
	case ErrModelNotFound:
		return e.Status == http.StatusNotFound
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || (e.Status >= 500 && e.Status < 600)
}

// classify converts go-openai errors into *APIError and leaves everything
// else wrapped as a transport failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			Status:  apiErr.HTTPStatusCode,
			Code:    codeString(apiErr.Code),
			Message: apiErr.Message,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := ""
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &APIError{Status: reqErr.HTTPStatusCode, Message: msg}
	}

	return fmt.Errorf("request failed: %w", err)
}

func codeString(code any) string {
	switch c := code.(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		return strings.TrimSpace(fmt.Sprint(c))
	}
}

// isRetryable determines if an error should trigger a retry.
func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}
