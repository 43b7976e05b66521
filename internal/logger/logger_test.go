package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestFileWriter_NilWithoutPath(t *testing.T) {
	if w := (FileConfig{}).Writer(); w != nil {
		t.Fatalf("expected nil writer when no path configured")
	}
}

func TestFileWriter_Defaults(t *testing.T) {
	dir := t.TempDir()
	w := FileConfig{Path: filepath.Join(dir, "launchr.log")}.Writer()
	l, ok := w.(*lj.Logger)
	if !ok {
		t.Fatalf("expected lumberjack logger, got %T", w)
	}
	if l.MaxSize != DefaultMaxSizeMB || l.MaxBackups != DefaultMaxBackups || l.MaxAge != DefaultMaxAgeDays {
		t.Fatalf("defaults not applied: %+v", l)
	}
	_, _ = w.Write([]byte("x\n"))
	_ = w.Close()
	if _, err := os.Stat(l.Filename); err != nil {
		t.Fatalf("log file not created: %v", err)
	}
}

func TestNewSlogger_JSONHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Slog: SlogConfig{Level: LevelWarn, Format: FormatJSON}}
	log, _ := cfg.newSlogger(&buf)
	log.Info("hidden")
	log.Warn("shown", "game_id", "pong")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["msg"] != "shown" || rec["game_id"] != "pong" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if _, ok := rec["time"]; ok {
		t.Fatalf("time should be dropped when timestamps are off")
	}
}

func TestNewSlogger_ColorKeepsAttrs(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Slog: SlogConfig{Level: LevelDebug, Format: FormatText, Color: true}}
	log, _ := cfg.newSlogger(&buf)
	log.With("component", "orchestrator").Debug("tick")
	out := buf.String()
	if !strings.Contains(out, "\033[36m") || !strings.Contains(out, "component=orchestrator") {
		t.Fatalf("expected colored debug line with attrs, got %q", out)
	}
}

func TestNewSlogger_ColorLeavesMessageReadable(t *testing.T) {
	var buf bytes.Buffer
	log, _ := DefaultConfig().newSlogger(&buf)
	log.Info("launching game", "game_id", "pong")
	out := buf.String()

	if !strings.HasPrefix(out, "\033[32mINFO ") {
		t.Fatalf("expected green level prefix, got %q", out)
	}
	if !strings.Contains(out, `msg="launching game"`) || !strings.Contains(out, "game_id=pong") {
		t.Fatalf("message or attrs mangled: %q", out)
	}
	if strings.Contains(out, `\x1b`) {
		t.Fatalf("escape codes leaked into the text record: %q", out)
	}
	if strings.Count(out, "INFO") != 1 {
		t.Fatalf("level printed more than once: %q", out)
	}
}

func TestNewSlogger_CloserReleasesFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "launchr.log")
	cfg := Config{Slog: SlogConfig{Level: LevelInfo, Format: FormatText, Color: true}, File: FileConfig{Path: path}}
	log, closer := cfg.newSlogger(&buf)
	log.Info("to both")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "to both") || strings.Contains(string(b), "\033[") {
		t.Fatalf("file should hold the plain record, got %q", b)
	}

	_, closer = DefaultConfig().newSlogger(&buf)
	if err := closer.Close(); err != nil {
		t.Fatalf("console-only closer should be a no-op: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"DEBUG": LevelDebug, "warning": LevelWarn, "error": LevelError, "": LevelInfo, "bogus": LevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q)=%q want %q", in, got, want)
		}
	}
}
