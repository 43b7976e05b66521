// Package health decides when a freshly started game is ready to use.
package health

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/loykin/launchr/internal/manifest"
	"github.com/loykin/launchr/internal/metrics"
)

// Checker runs blocking, deadline-bounded readiness probes.
type Checker struct {
	defaults Defaults
	client   *resty.Client
	log      *slog.Logger
	sleep    func(time.Duration)
}

// NewChecker builds a Checker. Retries in the HTTP client stay disabled: the
// polling loop owns pacing and the deadline.
func NewChecker(d Defaults, log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	c := resty.New().
		SetRetryCount(0).
		SetHeader("User-Agent", "launchr-healthcheck/1.0")
	return &Checker{
		defaults: d,
		client:   c,
		log:      log.With("component", "healthcheck"),
		sleep:    time.Sleep,
	}
}

// Client exposes the underlying HTTP client so callers can swap its transport.
func (c *Checker) Client() *resty.Client { return c.client }

// WaitUntilHealthy blocks until game is ready or its deadline passes.
func (c *Checker) WaitUntilHealthy(game manifest.GameEntry) error {
	started := time.Now()
	check, err := FromConfig(game.HealthCheck, c.defaults)
	if err != nil {
		var he *Error
		if errors.As(err, &he) {
			he.GameID = game.ID
		}
		metrics.ObserveHealthCheck(game.ID, "invalid", time.Since(started).Seconds())
		return err
	}

	switch h := check.(type) {
	case None:
		c.log.Info("skipping healthcheck", "game_id", game.ID)
		c.sleep(h.Settle)
		err = nil
	case HTTP:
		err = c.waitHTTP(game.ID, h)
	}

	result := "ok"
	if err != nil {
		result = "failed"
	}
	metrics.ObserveHealthCheck(game.ID, result, time.Since(started).Seconds())
	return err
}

func (c *Checker) waitHTTP(gameID string, h HTTP) error {
	url := h.URL()
	deadline := time.Now().Add(h.Timeout)
	lastErr := ""

	c.log.Info("waiting for http healthcheck", "game_id", gameID, "url", url, "timeout", h.Timeout)
	for attempt := 1; time.Now().Before(deadline); attempt++ {
		perAttempt := h.Interval
		if left := time.Until(deadline); left < perAttempt {
			perAttempt = left
		}
		code, err := c.get(url, perAttempt)
		if err != nil {
			lastErr = err.Error()
		} else {
			if code >= 200 && code < 300 {
				c.log.Info("healthcheck ok", "game_id", gameID, "attempts", attempt)
				return nil
			}
			lastErr = "status=" + strconv.Itoa(code)
		}
		c.log.Debug("healthcheck attempt failed", "game_id", gameID, "attempt", attempt, "reason", lastErr)

		left := time.Until(deadline)
		if left <= 0 {
			break
		}
		if left < h.Interval {
			c.sleep(left)
			break
		}
		c.sleep(h.Interval)
	}

	if lastErr == "" {
		lastErr = "no successful response"
	}
	return &Error{GameID: gameID, Reason: "timeout: " + lastErr}
}

// get issues one GET bounded by timeout and returns the status code.
func (c *Checker) get(url string, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	resp, err := c.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode(), nil
}
