package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFileWriter_Defaults(t *testing.T) {
	if (Config{}).FileWriter() != nil {
		t.Fatal("expected nil writer without a path")
	}

	path := filepath.Join(t.TempDir(), "lazyrestore.log")
	w := Config{File: FileConfig{Path: path}}.FileWriter()
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("expected *lumberjack.Logger, got %T", w)
	}
	if l.MaxSize != DefaultMaxSizeMB || l.MaxBackups != DefaultMaxBackups || l.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("defaults not applied: %+v", l)
	}
	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
}

func TestFileWriter_CustomRotation(t *testing.T) {
	cfg := Config{File: FileConfig{
		Path:       filepath.Join(t.TempDir(), "x.log"),
		MaxSizeMB:  1,
		MaxBackups: 9,
		MaxAgeDays: 2,
		Compress:   true,
	}}
	l := cfg.FileWriter().(*lj.Logger)
	if l.MaxSize != 1 || l.MaxBackups != 9 || l.MaxAge != 2 || !l.Compress {
		t.Fatalf("rotation settings not applied: %+v", l)
	}
}

func TestHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Slog: SlogConfig{Level: LevelDebug, Format: FormatJSON}}
	log := slog.New(cfg.Handler(&buf))
	log.Debug("discard scheduled", "tab_id", 7)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if rec["msg"] != "discard scheduled" || rec["tab_id"] != float64(7) {
		t.Fatalf("unexpected record: %v", rec)
	}
	if _, ok := rec["time"]; ok {
		t.Fatalf("time should be omitted without TimeStamps: %v", rec)
	}
}

func TestHandler_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Config{Slog: SlogConfig{Level: LevelWarn}}.Handler(&buf))
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestColorTextHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(Config{Slog: SlogConfig{Color: true}}.Handler(&buf))
	log.With("component", "manager").Warn("persist failed")

	out := buf.String()
	if !strings.Contains(out, "[33mWARN") {
		t.Fatalf("missing color code: %q", out)
	}
	if !strings.Contains(out, "component=manager") {
		t.Fatalf("attrs lost on derived logger: %q", out)
	}
	if strings.Contains(out, "time=") {
		t.Fatalf("time should be omitted: %q", out)
	}
}

func TestNewSlogger_WithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.log")
	log, closer := Config{File: FileConfig{Path: path}}.NewSlogger()
	log.Info("started")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), "started") {
		t.Fatalf("file missing record: %q", b)
	}
}
