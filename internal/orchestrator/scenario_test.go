//go:build !windows

package orchestrator_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/launchr/internal/bus"
	"github.com/loykin/launchr/internal/env"
	"github.com/loykin/launchr/internal/health"
	"github.com/loykin/launchr/internal/logger"
	"github.com/loykin/launchr/internal/manifest"
	"github.com/loykin/launchr/internal/orchestrator"
	"github.com/loykin/launchr/internal/process"
)

type stateLog struct {
	mu     sync.Mutex
	states []orchestrator.State
}

func (l *stateLog) add(_ string, payload []byte) {
	var s orchestrator.State
	if err := json.Unmarshal(payload, &s); err != nil {
		return
	}
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog) snapshot() []orchestrator.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]orchestrator.State(nil), l.states...)
}

func (l *stateLog) waitFor(t *testing.T, n int) []orchestrator.State {
	t.Helper()
	require.Eventually(t, func() bool { return len(l.snapshot()) >= n }, 10*time.Second, 10*time.Millisecond)
	return l.snapshot()
}

func summary(states []orchestrator.State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s.Mode) + "(" + s.Game() + ")"
	}
	return out
}

// A launches, B swaps in, B crashes with 137, then an exit intent arrives while idle.
func TestLaunchSwapCrashScenario(t *testing.T) {
	dir := t.TempDir()
	crash := filepath.Join(dir, "crash")

	games, err := manifest.New([]manifest.GameEntry{
		{ID: "a", Name: "Asteroids", Exec: "/bin/sh", Args: []string{"-c", "sleep 30"}},
		{ID: "b", Name: "Breakout", Synonyms: []string{"bricks"}, Exec: "/bin/sh",
			Args: []string{"-c", "while [ ! -f " + crash + " ]; do sleep 0.05; done; exit 137"}},
	})
	require.NoError(t, err)

	log := logger.Discard()
	procs := process.NewManager(env.New(), log)
	checker := health.NewChecker(health.Defaults{Timeout: time.Second, Interval: 50 * time.Millisecond}, log)
	o := orchestrator.New(games, procs, checker, orchestrator.Config{
		PollInterval: 50 * time.Millisecond,
		StopTimeout:  2 * time.Second,
	}, log)

	transport := bus.NewMemory()
	o.AddPublisher(bus.NewStatePublisher(transport, bus.DefaultStateTopic))
	require.NoError(t, bus.SubscribeIntents(transport, bus.DefaultIntentTopic, o.Deliver))

	seen := &stateLog{}
	require.NoError(t, transport.Subscribe(bus.DefaultStateTopic, seen.add))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	send := func(payload string) {
		require.NoError(t, transport.Publish(bus.DefaultIntentTopic, []byte(payload), false))
	}

	send(`{"type":"LAUNCH_GAME","game_name":"asteroids","source":"voice"}`)
	states := seen.waitFor(t, 2)
	assert.Equal(t, []string{"STARTING(a)", "RUNNING(a)"}, summary(states))
	assert.Equal(t, "a", procs.CurrentGameID())

	send(`{"type":"LAUNCH_GAME","game":"Bricks","source":"ui"}`)
	states = seen.waitFor(t, 5)
	assert.Equal(t, []string{"STARTING(a)", "RUNNING(a)", "STOPPING(a)", "STARTING(b)", "RUNNING(b)"}, summary(states))
	assert.Equal(t, "b", procs.CurrentGameID())

	require.NoError(t, os.WriteFile(crash, nil, 0o600))
	states = seen.waitFor(t, 6)
	crashed := states[5]
	assert.Equal(t, orchestrator.ModeIdle, crashed.Mode)
	assert.Contains(t, crashed.Detail, "crashed")
	assert.Contains(t, crashed.Detail, "137")
	assert.False(t, procs.Occupied())

	send(`{"type":"BACK_HOME","source":"ui"}`)
	states = seen.waitFor(t, 7)
	assert.Equal(t, orchestrator.ModeIdle, states[6].Mode)
	assert.Empty(t, states[6].Detail)
	assert.Nil(t, states[6].GameID)
	assert.False(t, procs.Occupied())

	for _, s := range states {
		assert.NotZero(t, s.TS)
	}
	assert.Equal(t, orchestrator.ModeIdle, o.Snapshot().Mode)
}
