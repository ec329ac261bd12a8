package persistence

import "log/slog"

// StoreOption configures store construction.
type StoreOption func(*storeConfig)

type storeConfig struct {
	logger *slog.Logger
}

func newStoreConfig(opts ...StoreOption) storeConfig {
	cfg := storeConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(c *storeConfig) {
		if l != nil {
			c.logger = l
		}
	}
}
