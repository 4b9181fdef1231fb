package domain

import "errors"

var (
	// Catalog errors
	ErrModelNotFound       = errors.New("model not found")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrGroupNotFound       = errors.New("group not found")
	ErrInvalidModelName    = errors.New("invalid model name")
	ErrInvalidProviderName = errors.New("invalid provider name")
	ErrInvalidProviderID   = errors.New("invalid provider id")
	ErrInvalidEndpoint     = errors.New("invalid endpoint")
	ErrInvalidMaxTokens    = errors.New("invalid max tokens")
	ErrInvalidPriority     = errors.New("invalid priority")
	ErrModelNotSelectable  = errors.New("model not selectable")

	// Group errors
	ErrInvalidGroupName  = errors.New("invalid group name")
	ErrInvalidStrategy   = errors.New("invalid strategy")
	ErrInvalidWeight     = errors.New("invalid weight")
	ErrInvalidMaxRetries = errors.New("invalid max retries")

	// Invocation errors
	ErrInvalidParams   = errors.New("invalid call params")
	ErrNoEligibleModel = errors.New("no eligible model")

	// Quota errors
	ErrQuotaNotFound = errors.New("quota not found")
	ErrQuotaExceeded = errors.New("quota exceeded")
)
