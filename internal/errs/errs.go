// Package errs defines the typed error taxonomy shared across the service.
package errs

import (
	"errors"
	"fmt"
)

// Code identifies an error kind for transport mapping and logging.
type Code string

const (
	CodeCharacterNotFound Code = "CHARACTER_NOT_FOUND"
	CodeCharacterLoad     Code = "CHARACTER_LOAD_ERROR"
	CodeSessionNotFound   Code = "SESSION_NOT_FOUND"
	CodeSessionExpired    Code = "SESSION_EXPIRED"
	CodeLLMProvider       Code = "LLM_PROVIDER_ERROR"
	CodeLLMTimeout        Code = "LLM_TIMEOUT_ERROR"
	CodeContentFiltered   Code = "CONTENT_FILTERED"
	CodeMessageTooLong    Code = "MESSAGE_TOO_LONG"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodePromptBuildFailed Code = "PROMPT_BUILD_ERROR"
	CodeValidationFailed  Code = "VALIDATION_ERROR"
)

// CharacterNotFoundError reports a missing character config.
type CharacterNotFoundError struct {
	CharacterID string
}

func (e *CharacterNotFoundError) Error() string {
	return fmt.Sprintf("character not found: %s", e.CharacterID)
}

func (e *CharacterNotFoundError) ErrorCode() Code { return CodeCharacterNotFound }

// CharacterLoadError reports a character config that exists but cannot be loaded.
type CharacterLoadError struct {
	CharacterID string
	Reason      string
	Err         error
}

func (e *CharacterLoadError) Error() string {
	return fmt.Sprintf("failed to load character %s: %s", e.CharacterID, e.Reason)
}

func (e *CharacterLoadError) Unwrap() error   { return e.Err }
func (e *CharacterLoadError) ErrorCode() Code { return CodeCharacterLoad }

// SessionNotFoundError reports an unknown session id.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

func (e *SessionNotFoundError) ErrorCode() Code { return CodeSessionNotFound }

// SessionExpiredError reports a session past its idle archive window.
type SessionExpiredError struct {
	SessionID string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired: %s", e.SessionID)
}

func (e *SessionExpiredError) ErrorCode() Code { return CodeSessionExpired }

// LLMProviderError reports a provider-level failure.
type LLMProviderError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *LLMProviderError) Error() string {
	return fmt.Sprintf("llm provider error (%s): %s", e.Provider, e.Reason)
}

func (e *LLMProviderError) Unwrap() error   { return e.Err }
func (e *LLMProviderError) ErrorCode() Code { return CodeLLMProvider }

// LLMTimeoutError reports a provider call exceeding its deadline.
type LLMTimeoutError struct {
	Provider       string
	TimeoutSeconds int
}

func (e *LLMTimeoutError) Error() string {
	return fmt.Sprintf("llm request timed out (%s): %ds", e.Provider, e.TimeoutSeconds)
}

func (e *LLMTimeoutError) ErrorCode() Code { return CodeLLMTimeout }

// ContentFilteredError reports input rejected by the content filter before
// any LLM call or state mutation.
type ContentFilteredError struct {
	Reason string
}

func (e *ContentFilteredError) Error() string {
	return fmt.Sprintf("content filtered: %s", e.Reason)
}

func (e *ContentFilteredError) ErrorCode() Code { return CodeContentFiltered }

// MessageTooLongError reports an over-length input message.
type MessageTooLongError struct {
	Length    int
	MaxLength int
}

func (e *MessageTooLongError) Error() string {
	return fmt.Sprintf("message too long: %d > %d", e.Length, e.MaxLength)
}

func (e *MessageTooLongError) ErrorCode() Code { return CodeMessageTooLong }

// RateLimitExceededError reports a client over its per-minute budget.
type RateLimitExceededError struct {
	LimitPerMinute int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d requests per minute", e.LimitPerMinute)
}

func (e *RateLimitExceededError) ErrorCode() Code { return CodeRateLimitExceeded }

// PromptBuildError reports a failure assembling the prompt for a character.
type PromptBuildError struct {
	CharacterID string
	Reason      string
	Err         error
}

func (e *PromptBuildError) Error() string {
	return fmt.Sprintf("prompt build failed (%s): %s", e.CharacterID, e.Reason)
}

func (e *PromptBuildError) Unwrap() error   { return e.Err }
func (e *PromptBuildError) ErrorCode() Code { return CodePromptBuildFailed }

// ValidationError reports invalid request data.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Field, e.Reason)
}

func (e *ValidationError) ErrorCode() Code { return CodeValidationFailed }

// Coder is implemented by every taxonomy error.
type Coder interface {
	error
	ErrorCode() Code
}

// CodeOf extracts the taxonomy code from err, or empty when untyped.
func CodeOf(err error) Code {
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return ""
}
