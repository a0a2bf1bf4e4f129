package metrics

import (
	"context"

	"codeberg.org/mutker/iceman/internal/logger"
)

// History records published samples into the local SQLite database.
type History struct {
	repo HistoryRepository
}

// NewHistory returns a History backed by a new repository, or nil when
// history is disabled.
func NewHistory(cfg HistoryConfig, log logger.Logger) (*History, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, nil
	}

	repo, err := NewRepository(cfg, log.With("history"))
	if err != nil {
		return nil, err
	}

	return &History{repo: repo}, nil
}

func (h *History) Publish(_ context.Context, s Sample) error {
	return h.repo.Record(&s)
}

func (h *History) Close() error {
	return h.repo.Close()
}
