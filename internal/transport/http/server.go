package httptransport

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ServerConfig contains tunables for the HTTP server. Zero durations take the defaults below.
type ServerConfig struct {
	Address           string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

const (
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// NewServer creates an *http.Server for handler. Internal server errors are written to logger.
func NewServer(cfg ServerConfig, handler http.Handler, logger *zap.Logger) *http.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadTimeout:       orDefault(cfg.ReadTimeout, defaultReadTimeout),
		ReadHeaderTimeout: orDefault(cfg.ReadHeaderTimeout, orDefault(cfg.ReadTimeout, defaultReadTimeout)),
		WriteTimeout:      orDefault(cfg.WriteTimeout, defaultWriteTimeout),
		IdleTimeout:       orDefault(cfg.IdleTimeout, defaultIdleTimeout),
	}
	if errLog, err := zap.NewStdLogAt(logger, zap.WarnLevel); err == nil {
		srv.ErrorLog = errLog
	}
	return srv
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
