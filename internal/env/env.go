// Package env composes the environment handed to a launched game.
//
// Precedence, lowest to highest: the supervisor's own environment, the
// global variables from the config file, then the game's overrides.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

type Env struct {
	global Var // configured globals (K->V)
	base   Var // cached base from OS environment
}

func New() *Env {
	return &Env{global: make(Var)}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.base = Parse(os.Environ())
}

// SetBase replaces the base environment, e.g. with nothing when games must
// not inherit the supervisor's variables.
func (e *Env) SetBase(kvs []string) {
	e.base = Parse(kvs)
}

// SetGlobal replaces the global variables with kvs ("K=V" entries).
// ${VAR} references are expanded against the base environment and earlier globals.
func (e *Env) SetGlobal(kvs []string) {
	if e.base == nil {
		e.FromOS()
	}
	g := make(Var, len(kvs))
	for _, kv := range kvs {
		k, v, ok := split(kv)
		if !ok {
			continue
		}
		g[k] = expand(v, e.base, g)
	}
	e.global = g
}

// Global returns a copy of the configured globals.
func (e *Env) Global() Var {
	out := make(Var, len(e.global))
	for k, v := range e.global {
		out[k] = v
	}
	return out
}

// Merge returns the composed environment as sorted "K=V" entries.
// Override values are taken verbatim.
func (e *Env) Merge(overrides map[string]string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(Var, len(e.base)+len(e.global)+len(overrides))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.global {
		m[k] = v
	}
	for k, v := range overrides {
		if k == "" {
			continue
		}
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Parse converts "K=V" entries into a map, skipping malformed ones.
func Parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		if k, v, ok := split(kv); ok {
			m[k] = v
		}
	}
	return m
}

func split(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

// expand replaces ${VAR} using later maps first.
func expand(s string, maps ...Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(name string) string {
		for i := len(maps) - 1; i >= 0; i-- {
			if v, ok := maps[i][name]; ok {
				return v
			}
		}
		return ""
	})
}
