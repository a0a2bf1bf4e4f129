package metrics

import (
	"time"

	"codeberg.org/mutker/iceman/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm   = 0o755
	defaultDBPath    = "/var/lib/iceman/history.db"
	defaultBatchSize = 12
	// one minute of samples at the default metrics interval
	defaultBatchTimeout = time.Minute
)

// HistoryConfig configures the SQLite sample history.
type HistoryConfig struct {
	DBPath       string
	BatchSize    int
	BatchTimeout time.Duration
	Enabled      bool
}

func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		DBPath:       defaultDBPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Enabled:      false, // Disabled by default
	}
}

func (c HistoryConfig) Validate() error {
	errFactory := errors.New()

	// Only validate DBPath if history is enabled
	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	return nil
}

// InfluxConfig configures the line protocol endpoint.
type InfluxConfig struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

// LoopConfig configures the metrics loop.
type LoopConfig struct {
	Interval time.Duration
	Location string
	Fan      string
	Probe    string
}
