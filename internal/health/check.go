package health

import (
	"fmt"
	"strings"
	"time"

	"github.com/loykin/launchr/internal/manifest"
)

const (
	KindNone = "none"
	KindHTTP = "http"

	DefaultPath = "/health"
	maxSettle   = 200 * time.Millisecond
)

// Defaults apply when a game's health check leaves timing unset.
type Defaults struct {
	Timeout  time.Duration
	Interval time.Duration
}

func DefaultDefaults() Defaults {
	return Defaults{Timeout: 5 * time.Second, Interval: 200 * time.Millisecond}
}

// Check is the closed set of readiness probes: None or HTTP.
type Check interface {
	Kind() string
	sealed()
}

// None succeeds after a short settle delay without touching the network.
type None struct {
	Settle time.Duration
}

// HTTP polls http://127.0.0.1:<Port><Path> until a 2xx or the deadline.
type HTTP struct {
	Port     int
	Path     string
	Timeout  time.Duration
	Interval time.Duration
}

func (None) Kind() string { return KindNone }
func (None) sealed()      {}
func (HTTP) Kind() string { return KindHTTP }
func (HTTP) sealed()      {}

func (h HTTP) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", h.Port, h.Path)
}

// FromConfig decides the probe variant for a game. An unknown kind or an
// http probe without a port fails here, before any request is made.
func FromConfig(cfg manifest.HealthCheckConfig, d Defaults) (Check, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Type))
	switch kind {
	case "", KindNone:
		settle := maxSettle
		if d.Interval > 0 && d.Interval < settle {
			settle = d.Interval
		}
		return None{Settle: settle}, nil
	case KindHTTP:
		if cfg.Port == nil {
			return nil, &Error{Reason: "http healthcheck requires 'port'"}
		}
		h := HTTP{
			Port:     *cfg.Port,
			Path:     cfg.Path,
			Timeout:  d.Timeout,
			Interval: d.Interval,
		}
		if h.Path == "" {
			h.Path = DefaultPath
		}
		if cfg.TimeoutSec != nil {
			h.Timeout = seconds(*cfg.TimeoutSec)
		}
		if cfg.IntervalSec != nil {
			h.Interval = seconds(*cfg.IntervalSec)
		}
		return h, nil
	default:
		return nil, &Error{Reason: "unknown healthcheck type: " + kind}
	}
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
