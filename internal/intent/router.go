package intent

import (
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/loykin/launchr/internal/metrics"
)

// Router hands classified intents to exactly one of two handlers. Handlers
// run synchronously on the caller's goroutine.
type Router struct {
	onLaunch func(LaunchGame)
	onExit   func(Intent)
	log      *slog.Logger
}

func NewRouter(onLaunch func(LaunchGame), onExit func(Intent), log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{onLaunch: onLaunch, onExit: onExit, log: log.With("component", "intent")}
}

// Parse classifies payload without dispatching it. ok is false for
// malformed payloads and unknown types.
func Parse(payload []byte) (in Intent, ok bool) {
	in, _, ok = classify(payload)
	return in, ok
}

// classify also returns the upper-cased type so callers can log drops.
func classify(payload []byte) (Intent, string, bool) {
	if !gjson.ValidBytes(payload) {
		return nil, "", false
	}
	doc := gjson.ParseBytes(payload)
	if !doc.IsObject() {
		return nil, "", false
	}
	kind := strings.ToUpper(doc.Get("type").String())
	source := doc.Get("source").String()

	switch kind {
	case TypeLaunchGame:
		name := doc.Get("game_name").String()
		if name == "" {
			name = doc.Get("game").String()
		}
		return LaunchGame{SpokenName: name, Source: source}, kind, true
	case TypeBackHome:
		return GoHome{Source: source}, kind, true
	case TypeQuit:
		return Quit{Source: source}, kind, true
	}
	return nil, kind, false
}

// Dispatch classifies payload and invokes at most one handler.
func (r *Router) Dispatch(payload []byte) {
	in, kind, ok := classify(payload)
	if !ok {
		if kind == "" && !isObject(payload) {
			r.log.Warn("dropping malformed intent payload", "size", len(payload))
		} else {
			r.log.Info("ignoring unknown intent", "type", kind)
		}
		metrics.IncIntent("dropped")
		return
	}
	metrics.IncIntent(kind)
	r.log.Info("intent received", "type", kind, "source", in.Origin())

	switch v := in.(type) {
	case LaunchGame:
		if r.onLaunch != nil {
			r.onLaunch(v)
		}
	default:
		if r.onExit != nil {
			r.onExit(v)
		}
	}
}

func isObject(payload []byte) bool {
	return gjson.ValidBytes(payload) && gjson.ParseBytes(payload).IsObject()
}
