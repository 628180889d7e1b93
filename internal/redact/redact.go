// Package redact masks secrets in log output.
package redact

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// Placeholder replaces every masked secret.
const Placeholder = "***REDACTED***"

// Masker replaces literal secrets and pattern matches in strings. It is
// immutable once built and safe for concurrent use.
type Masker struct {
	patterns []*regexp.Regexp
	literals []string
}

// NewMasker builds a masker. Empty literals are ignored.
func NewMasker(patterns []*regexp.Regexp, literals ...string) *Masker {
	m := &Masker{patterns: patterns}
	for _, l := range literals {
		if l != "" {
			m.literals = append(m.literals, l)
		}
	}
	return m
}

// Empty reports whether m masks nothing.
func (m *Masker) Empty() bool {
	return len(m.patterns) == 0 && len(m.literals) == 0
}

// Mask returns s with every secret replaced by Placeholder.
func (m *Masker) Mask(s string) string {
	if s == "" {
		return s
	}
	for _, p := range m.patterns {
		s = p.ReplaceAllString(s, Placeholder)
	}
	for _, l := range m.literals {
		s = strings.ReplaceAll(s, l, Placeholder)
	}
	return s
}

// Handler masks the message and every string attribute before passing
// the record to the wrapped handler.
type Handler struct {
	inner  slog.Handler
	masker *Masker
}

var _ slog.Handler = (*Handler)(nil)

// NewHandler wraps inner.
func NewHandler(inner slog.Handler, masker *Masker) *Handler {
	return &Handler{inner: inner, masker: masker}
}

// Enabled delegates to the wrapped handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle masks the record and delegates.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.masker.Mask(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.mask(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

// WithAttrs masks attrs once and folds them into the wrapped handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.mask(a)
	}
	return &Handler{inner: h.inner.WithAttrs(masked), masker: h.masker}
}

// WithGroup delegates.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), masker: h.masker}
}

func (h *Handler) mask(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	switch a.Value.Kind() {
	case slog.KindString:
		a.Value = slog.StringValue(h.masker.Mask(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		masked := make([]slog.Attr, len(group))
		for i, ga := range group {
			masked[i] = h.mask(ga)
		}
		a.Value = slog.GroupValue(masked...)
	case slog.KindAny:
		// Payloads and errors are logged as values; mask their text form.
		s := a.Value.String()
		if m := h.masker.Mask(s); m != s {
			a.Value = slog.StringValue(m)
		}
	}
	return a
}
