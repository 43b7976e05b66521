package env

import (
	"strings"
	"testing"
)

func lookup(kvs []string, key string) (string, bool) {
	for _, kv := range kvs {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

func TestMerge_Precedence(t *testing.T) {
	t.Setenv("LAUNCHR_ENV_A", "os")
	t.Setenv("LAUNCHR_ENV_B", "os")
	t.Setenv("LAUNCHR_ENV_C", "os")

	e := New()
	e.FromOS()
	e.SetGlobal([]string{"LAUNCHR_ENV_B=global", "LAUNCHR_ENV_C=global"})
	out := e.Merge(map[string]string{"LAUNCHR_ENV_C": "game", "SDL_VIDEODRIVER": "x11"})

	want := map[string]string{
		"LAUNCHR_ENV_A":   "os",
		"LAUNCHR_ENV_B":   "global",
		"LAUNCHR_ENV_C":   "game",
		"SDL_VIDEODRIVER": "x11",
	}
	for k, v := range want {
		got, ok := lookup(out, k)
		if !ok || got != v {
			t.Errorf("%s=%q (present=%v), want %q", k, got, ok, v)
		}
	}
}

func TestSetGlobal_ExpandsAgainstBaseAndEarlierGlobals(t *testing.T) {
	t.Setenv("LAUNCHR_ENV_HOME", "/srv/kiosk")
	e := New()
	e.FromOS()
	e.SetGlobal([]string{"ROOT=${LAUNCHR_ENV_HOME}/games", "ASSETS=${ROOT}/assets", "=skipped", "novalue"})

	g := e.Global()
	if g["ROOT"] != "/srv/kiosk/games" || g["ASSETS"] != "/srv/kiosk/games/assets" {
		t.Fatalf("unexpected expansion: %v", g)
	}
	if len(g) != 2 {
		t.Fatalf("malformed entries should be skipped: %v", g)
	}
}

func TestMerge_OverridesTakenVerbatim(t *testing.T) {
	e := New()
	e.FromOS()
	out := e.Merge(map[string]string{"LAUNCHR_ENV_RAW": "${NOT_EXPANDED}"})
	if v, _ := lookup(out, "LAUNCHR_ENV_RAW"); v != "${NOT_EXPANDED}" {
		t.Fatalf("override should not be expanded, got %q", v)
	}
}

func TestSetBase_NoInheritance(t *testing.T) {
	t.Setenv("LAUNCHR_ENV_SECRET", "leak")
	e := New()
	e.SetBase([]string{"PATH=/usr/bin"})
	e.SetGlobal([]string{"KIOSK=1"})
	out := e.Merge(nil)
	if _, ok := lookup(out, "LAUNCHR_ENV_SECRET"); ok {
		t.Fatalf("OS variable leaked into %v", out)
	}
	if len(out) != 2 || out[0] != "KIOSK=1" || out[1] != "PATH=/usr/bin" {
		t.Fatalf("unexpected env %v", out)
	}
}
