package runner

import (
	"io"
	"log/slog"

	"github.com/flemzord/statekit/internal/config"
	"github.com/flemzord/statekit/internal/redact"
)

// NewLogger builds the process logger from the log section. The server
// token and the log.redact patterns never reach the output.
func NewLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	if m := redact.NewMasker(cfg.RedactPatterns(), cfg.Server.Token); !m.Empty() {
		h = redact.NewHandler(h, m)
	}
	return slog.New(h), nil
}
