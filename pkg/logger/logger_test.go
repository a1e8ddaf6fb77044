package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/wonny/factorloop/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *config.Config
		wantLevel zerolog.Level
	}{
		{
			name:      "debug level",
			cfg:       &config.Config{Env: "development", LogLevel: "debug", LogFormat: "json"},
			wantLevel: zerolog.DebugLevel,
		},
		{
			name:      "info level",
			cfg:       &config.Config{Env: "production", LogLevel: "info", LogFormat: "console"},
			wantLevel: zerolog.InfoLevel,
		},
		{
			name:      "warn level",
			cfg:       &config.Config{Env: "staging", LogLevel: "warn", LogFormat: "pretty"},
			wantLevel: zerolog.WarnLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if New(tt.cfg) == nil {
				t.Fatal("Expected logger to be created")
			}
			if zerolog.GlobalLevel() != tt.wantLevel {
				t.Errorf("Expected global level %v, got %v", tt.wantLevel, zerolog.GlobalLevel())
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	return entry
}

func jsonConfig() *config.Config {
	return &config.Config{Env: "test", LogLevel: "debug", LogFormat: "json", TradingMode: "simulation"}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(jsonConfig(), &buf)

	tests := []struct {
		name      string
		logFunc   func()
		wantMsg   string
		wantLevel string
	}{
		{"debug", func() { log.Debug("cycle start") }, "cycle start", "debug"},
		{"info", func() { log.Info("regime bull") }, "regime bull", "info"},
		{"warn", func() { log.Warn("retry attempt") }, "retry attempt", "warn"},
		{"error", func() { log.Error("save failed") }, "save failed", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.logFunc()

			entry := decode(t, &buf)
			if entry["level"] != tt.wantLevel {
				t.Errorf("Expected level %q, got %q", tt.wantLevel, entry["level"])
			}
			if entry["message"] != tt.wantMsg {
				t.Errorf("Expected message %q, got %q", tt.wantMsg, entry["message"])
			}
		})
	}
}

func TestFieldHelpers(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(jsonConfig(), &buf)

	log.WithComponent("intraday").
		WithInstrument("600519.SH").
		WithFields(map[string]interface{}{"volume": 200, "reason": "dip_buy"}).
		WithError(errors.New("quota exhausted")).
		Warn("buy rejected")

	entry := decode(t, &buf)
	if entry["component"] != "intraday" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["instrument"] != "600519.SH" {
		t.Errorf("instrument = %v", entry["instrument"])
	}
	if entry["volume"] != float64(200) {
		t.Errorf("volume = %v", entry["volume"])
	}
	if entry["reason"] != "dip_buy" {
		t.Errorf("reason = %v", entry["reason"])
	}
	if entry["error"] != "quota exhausted" {
		t.Errorf("error = %v", entry["error"])
	}
	if entry["env"] != "test" || entry["mode"] != "simulation" {
		t.Errorf("env/mode = %v/%v", entry["env"], entry["mode"])
	}
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	cfg := jsonConfig()
	cfg.LogFormat = "console"

	NewWithWriter(cfg, &buf).Info("strategy loaded")
	if !bytes.Contains(buf.Bytes(), []byte("strategy loaded")) {
		t.Errorf("console output missing message: %q", buf.String())
	}
	if json.Valid(buf.Bytes()) {
		t.Errorf("console output should not be JSON: %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	log := NewNop()
	log.Info("discarded")
	log.WithField("k", "v").Error("discarded")
}
