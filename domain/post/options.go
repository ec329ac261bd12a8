package post

import "github.com/helixml/memeindex/domain/repository"

// MaxPageSize bounds a single listing page.
const MaxPageSize = 100

// DefaultSearchLimit is the number of results returned by a similarity search.
const DefaultSearchLimit = 20

// WithKey filters by idempotency key.
func WithKey(key string) repository.Option {
	return repository.WithCondition("post_key", key)
}

// WithHypeOrder orders by hype score descending with id ascending as tie-breaker.
func WithHypeOrder() repository.Option {
	return func(q repository.Query) repository.Query {
		q = repository.WithOrderDesc("hype_score")(q)
		return repository.WithOrderAsc("id")(q)
	}
}

// ClampPage normalizes listing pagination: negative skip becomes 0 and a
// limit outside (0, MaxPageSize] becomes MaxPageSize.
func ClampPage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	return skip, limit
}
