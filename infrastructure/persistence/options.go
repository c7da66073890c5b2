package persistence

import "log/slog"

// StoreOption configures a document store.
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

// WithLogger sets the logger used by the store.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(c *storeConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}
