package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/statekit/modules/actionlog"
	"github.com/flemzord/statekit/pkg/action"
)

// ErrEmptyScript is returned by LoadScript for a script without steps.
var ErrEmptyScript = errors.New("runner: script has no steps")

// Script is a list of steps dispatched in order against a started app.
type Script struct {
	Steps []Step `yaml:"steps"`
}

// Step dispatches an action, pauses, or both (the pause comes first).
type Step struct {
	Type    string        `yaml:"type"`
	Payload any           `yaml:"payload,omitempty"`
	Sleep   time.Duration `yaml:"sleep,omitempty"`

	// Wait awaits the effect the action triggers. Ignored for non-effect
	// actions.
	Wait bool `yaml:"wait,omitempty"`
}

// StepResult is the outcome of one dispatching step.
type StepResult struct {
	Type   string `yaml:"type"`
	Result any    `yaml:"result,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

// Report is what Replay produces.
type Report struct {
	Steps   []StepResult      `yaml:"steps"`
	Journal []actionlog.Entry `yaml:"journal"`
	State   any               `yaml:"state"`
}

// LoadScript reads a YAML script.
func LoadScript(path string) (*Script, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("runner: reading script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("runner: parsing script %s: %w", path, err)
	}
	if len(s.Steps) == 0 {
		return nil, ErrEmptyScript
	}
	return &s, nil
}

// Replay runs script against the started app of h. Effect failures are
// recorded in the report; only context cancellation stops the replay.
func Replay(ctx context.Context, h *Host, script *Script) (*Report, error) {
	report := &Report{}
	for _, step := range script.Steps {
		if step.Sleep > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(step.Sleep):
			}
		}
		if step.Type == "" {
			continue
		}

		act := action.New(step.Type, step.Payload)
		res := StepResult{Type: step.Type}
		var (
			value any
			err   error
		)
		if step.Wait && h.App.IsEffect(step.Type) {
			value, err = h.App.DispatchEffect(ctx, act)
		} else {
			_, err = h.App.Dispatch(act)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Result = value
		}
		report.Steps = append(report.Steps, res)
	}

	report.Journal = h.Journal.Entries()
	report.State = h.App.GetState()
	return report, nil
}
