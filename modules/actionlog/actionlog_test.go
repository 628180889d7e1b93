package actionlog

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/flemzord/statekit/pkg/action"
	"github.com/flemzord/statekit/pkg/store"
)

func TestJournal_RecordsAndLogs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	j := New(slog.New(slog.NewTextHandler(&buf, nil)), slog.LevelInfo, 2)
	s := store.New(func(state any, _ action.Action) any { return state }, nil,
		store.ApplyMiddleware(j.Middleware()))

	s.Dispatch(action.New("count/add", 1))
	s.Dispatch(action.Action{Type: "count/minus", ID: "42"})
	s.Dispatch(action.New("count/reset", nil))

	entries := j.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (limit)", len(entries))
	}
	if entries[0].Type != "count/minus" || entries[1].Type != "count/reset" {
		t.Errorf("entries = %+v, want the two latest", entries)
	}
	out := buf.String()
	if !strings.Contains(out, "type=count/add") || !strings.Contains(out, "id=42") {
		t.Errorf("log output missing fields: %s", out)
	}
}

func TestStateLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := StateLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	l(map[string]any{"count": 1})
	if !strings.Contains(buf.String(), "state changed") {
		t.Errorf("log output = %q", buf.String())
	}
}
