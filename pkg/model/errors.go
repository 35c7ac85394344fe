package model

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrEmbeddingUnavailable  = goerr.New("embedding unavailable")
	ErrStoreUnavailable      = goerr.New("store unavailable")
	ErrLLMUnavailable        = goerr.New("llm unavailable")
	ErrDuplicateCustomer     = goerr.New("customer already exists")
	ErrCustomerNotFound      = goerr.New("customer not found")
	ErrRoadmapItemNotFound   = goerr.New("roadmap item not found")
	ErrToolCallLimitExceeded = goerr.New("tool call limit exceeded")
	ErrDimensionMismatch     = goerr.New("embedding dimension mismatch")
	ErrInvalidArgument       = goerr.New("invalid argument")
	ErrInvalidPriority       = goerr.New("invalid priority")
)

// IsTransient reports whether err is a boundary failure that may succeed on
// retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrLLMUnavailable)
}
