package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, ".env")
	data := "A=1\n#comment\n\nexport B=two\nC=\"quoted\"\nbroken\n=nokey\n"
	if err := os.WriteFile(dotenv, []byte(data), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	pairs, err := LoadEnvFile(dotenv)
	if err != nil {
		t.Fatalf("load env file: %v", err)
	}
	want := []string{"A=1", "B=two", "C=quoted"}
	if strings.Join(pairs, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", pairs, want)
	}
}

func TestLoadEnvFileInvalidPath(t *testing.T) {
	if _, err := LoadEnvFile("/definitely/not/exist.env"); err == nil {
		t.Fatalf("expected error for missing env file")
	}
}

func TestNewEnv_FilesThenTopLevel(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "launchr.toml")
	t.Setenv("LAUNCHR_TEST_OS_ONLY", "osv")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("FILE_ONLY=fv\nCHAIN=${LAUNCHR_TEST_OS_ONLY}-x\nTOP=file\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	data := "" +
		"use_os_env = true\n" +
		"env_files = [\".env\"]\n" +
		"env = [\"TOP=tv\"]\n"
	if err := os.WriteFile(cfgPath, []byte(data), 0o644); err != nil {
		t.Fatalf("write cfg: %v", err)
	}
	c, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e, err := c.NewEnv()
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	g := e.Global()
	if g["FILE_ONLY"] != "fv" || g["TOP"] != "tv" || g["CHAIN"] != "osv-x" {
		t.Fatalf("unexpected globals: %v", g)
	}

	merged := strings.Join(e.Merge(map[string]string{"TOP": "game"}), "\n")
	if !strings.Contains(merged, "LAUNCHR_TEST_OS_ONLY=osv") || !strings.Contains(merged, "TOP=game") {
		t.Fatalf("merge lost precedence:\n%s", merged)
	}
}

func TestNewEnv_WithoutOS(t *testing.T) {
	t.Setenv("LAUNCHR_TEST_HIDDEN", "x")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.UseOSEnv = false
	c.Env = []string{"ONLY=1"}
	e, err := c.NewEnv()
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	if got := e.Merge(nil); len(got) != 1 || got[0] != "ONLY=1" {
		t.Fatalf("unexpected env %v", got)
	}
}

func TestNewEnv_MissingFileIsConfigError(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.EnvFiles = []string{filepath.Join(t.TempDir(), "missing.env")}
	_, err = c.NewEnv()
	var ce *Error
	if !asError(err, &ce) || ce.Op != "env_file" {
		t.Fatalf("expected env_file *Error, got %v", err)
	}
}
