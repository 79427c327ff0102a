package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo || cfg.Pretty || cfg.Output == nil {
		t.Errorf("DefaultConfig() = %+v, want info level, JSON, stderr", cfg)
	}
}

// emitted logs one event per level through a component logger and returns
// the messages that reached the output.
func emitted(t *testing.T, level LogLevel) []string {
	t.Helper()
	buf := &bytes.Buffer{}
	Setup(Config{Level: level, Output: buf})

	logger := NewLogger(ComponentStream)
	logger.Debug().Msg("debug")
	logger.Info().Msg("info")
	logger.Warn().Msg("warn")
	logger.Error().Msg("error")

	var msgs []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			t.Fatalf("line %q is not JSON: %v", line, err)
		}
		if event["component"] != ComponentStream {
			t.Errorf("component = %v, want %s", event["component"], ComponentStream)
		}
		msgs = append(msgs, event["message"].(string))
	}
	return msgs
}

func TestSetup_LevelFiltering(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{LevelDebug, "debug,info,warn,error"},
		{LevelInfo, "info,warn,error"},
		{LevelWarn, "warn,error"},
		{LevelError, "error"},
		{LevelDisabled, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			if got := strings.Join(emitted(t, tt.level), ","); got != tt.want {
				t.Errorf("emitted = %q, want %q", got, tt.want)
			}
		})
	}
	// Leave the global level usable for other tests.
	Setup(DefaultConfig())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
		valid    bool
	}{
		{LevelDebug, zerolog.DebugLevel, true},
		{LevelInfo, zerolog.InfoLevel, true},
		{LevelWarn, zerolog.WarnLevel, true},
		{LevelError, zerolog.ErrorLevel, true},
		{LevelDisabled, zerolog.Disabled, true},
		{"WARNING", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
			if err := ValidateLevel(tt.input); (err == nil) != tt.valid {
				t.Errorf("ValidateLevel(%q) error = %v, valid %v", tt.input, err, tt.valid)
			}
		})
	}
}

func TestNewLogger_FetchEvent(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelDebug, Output: buf})
	defer Setup(DefaultConfig())

	logger := NewLogger(ComponentPagination)
	logger.Debug().Int64("offset", 30).Int64("limit", 10).Int("items", 10).Msg("Fetched page")

	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("output %q is not JSON: %v", buf.String(), err)
	}
	if event["component"] != ComponentPagination || event["offset"] != float64(30) || event["items"] != float64(10) {
		t.Errorf("event = %v", event)
	}
	if _, ok := event["time"]; !ok {
		t.Error("event has no timestamp")
	}
}

func TestSetup_PrettyOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelInfo, Pretty: true, Output: buf})
	defer Setup(DefaultConfig())

	logger.Info().Int64("offset", 30).Msg("fetched page")

	output := buf.String()
	if strings.HasPrefix(output, "{") {
		t.Errorf("Expected console output, got JSON %q", output)
	}
	if !strings.Contains(output, "offset=") || !strings.Contains(output, "30") {
		t.Errorf("Expected output to contain the offset field, got %q", output)
	}
}

func TestSetup_NilOutputFallsBackToStderr(t *testing.T) {
	logger := Setup(Config{Level: LevelDisabled})
	logger.Error().Msg("discarded")
	Setup(DefaultConfig())
}
