package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/OCAP2/placefinder/internal/dispatcher"
	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/rs/zerolog"
)

var testTime = time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

func recordLine(t *testing.T, level zerolog.Level, o dispatcher.Outcome) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	NewCommandLogger(zerolog.New(&buf).Level(level)).Record(o)
	if buf.Len() == 0 {
		return nil
	}
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("failed to parse log output %q: %v", buf.String(), err)
	}
	return line
}

func TestCommandLogger_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		o         dispatcher.Outcome
		level     string
		outcome   string
		wantTook  bool
		wantError bool
	}{
		{
			name:     "ok",
			o:        dispatcher.Outcome{Command: ":SEARCH:RUN:", Duration: 40 * time.Millisecond},
			level:    "debug",
			outcome:  "ok",
			wantTook: true,
		},
		{
			name:    "queued",
			o:       dispatcher.Outcome{Command: ":SEARCH:QUEUE:", Queued: true},
			level:   "debug",
			outcome: "queued",
		},
		{
			name:      "failed",
			o:         dispatcher.Outcome{Command: ":GEOCODE:", Err: fmt.Errorf("%w: upstream 503", core.ErrProvider)},
			level:     "error",
			outcome:   "failed",
			wantTook:  true,
			wantError: true,
		},
		{
			name:     "superseded",
			o:        dispatcher.Outcome{Command: ":SEARCH:RUN:", Err: core.ErrSuperseded},
			level:    "info",
			outcome:  "superseded",
			wantTook: true,
		},
		{
			name:    "dropped",
			o:       dispatcher.Outcome{Command: ":SEARCH:QUEUE:", Err: fmt.Errorf("%w: :SEARCH:QUEUE:", dispatcher.ErrQueueFull)},
			level:   "warn",
			outcome: "dropped",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.o.PayloadBytes = 17
			line := recordLine(t, zerolog.DebugLevel, tt.o)
			if line == nil {
				t.Fatal("expected a log line")
			}
			if line["level"] != tt.level {
				t.Errorf("expected level %q, got %v", tt.level, line["level"])
			}
			if line["command"] != tt.o.Command {
				t.Errorf("expected command %q, got %v", tt.o.Command, line["command"])
			}
			if line["outcome"] != tt.outcome {
				t.Errorf("expected outcome %q, got %v", tt.outcome, line["outcome"])
			}
			if line["payloadBytes"] != float64(17) {
				t.Errorf("expected payloadBytes=17, got %v", line["payloadBytes"])
			}
			if _, ok := line["took"]; ok != tt.wantTook {
				t.Errorf("took present=%v, want %v", ok, tt.wantTook)
			}
			if _, ok := line["error"]; ok != tt.wantError {
				t.Errorf("error present=%v, want %v", ok, tt.wantError)
			}
		})
	}
}

func TestCommandLogger_MarksAsyncRuns(t *testing.T) {
	line := recordLine(t, zerolog.DebugLevel, dispatcher.Outcome{
		Command: ":SEARCH:QUEUE:",
		Async:   true,
		Err:     errors.New("places provider down"),
	})
	if line["async"] != true {
		t.Errorf("expected async=true, got %v", line["async"])
	}
	if line["message"] != "command failed" {
		t.Errorf("unexpected message %v", line["message"])
	}
}

func TestCommandLogger_SuccessHiddenAtInfo(t *testing.T) {
	if line := recordLine(t, zerolog.InfoLevel, dispatcher.Outcome{Command: ":CLEAR:"}); line != nil {
		t.Errorf("expected no output at info level, got %v", line)
	}
}

func TestCommandLogger_ImplementsRecorder(t *testing.T) {
	var _ dispatcher.Recorder = NewCommandLogger(zerolog.Nop())
}
