// Package process owns the single supervised game process: spawning it,
// tearing it down with graceful-then-forced escalation across its process
// tree, and noticing when it exits on its own.
package process

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/launchr/internal/env"
	"github.com/loykin/launchr/internal/manifest"
	"github.com/loykin/launchr/internal/metrics"
)

// DefaultStopTimeout bounds each wait phase of Stop.
const DefaultStopTimeout = 3 * time.Second

type signaler interface {
	Terminate(pid int) error
	Kill(pid int) error
}

// run is one occupancy of the slot.
type run struct {
	game    manifest.GameEntry
	cmd     *exec.Cmd
	pid     int
	handle  *gopsproc.Process // nil when the process vanished before it could be opened
	started time.Time
	done    chan struct{} // closed once the child has been reaped
	code    *int          // written before done is closed
}

func (r *run) wait() {
	_ = r.cmd.Wait()
	r.code = exitCode(r.cmd.ProcessState)
	close(r.done)
}

func (r *run) exited() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *run) waitFor(d time.Duration) bool {
	if d <= 0 {
		return r.exited()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-r.done:
		return true
	case <-t.C:
		return false
	}
}

// Status is a read-only view of the slot.
type Status struct {
	GameID    string    `json:"game_id,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Manager holds at most one live game process. Start, Stop and PollExit
// share one critical section: Start/Stop are driven by intents while
// PollExit is driven by a timer.
type Manager struct {
	mu       sync.Mutex
	cur      *run
	stopping bool // set before the first signal of a Stop

	env *env.Env
	sig signaler
	log *slog.Logger
}

func NewManager(e *env.Env, log *slog.Logger) *Manager {
	if e == nil {
		e = env.New()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{env: e, sig: osSignaler{}, log: log.With("component", "process")}
}

// Start spawns game. It fails with ErrAlreadyRunning while the slot is
// occupied and with *SpawnError when the executable cannot be started;
// in both cases the slot is left as it was.
func (m *Manager) Start(game manifest.GameEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.cur.game.ID)
	}

	// #nosec G204 -- exec and args come from the validated manifest
	cmd := exec.Command(game.Exec, game.Args...)
	cmd.Dir = game.WorkDir
	cmd.Env = m.env.Merge(game.Env)
	// nil stdio is connected to the null device; game output is not ours to keep
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil
	configureSysProcAttr(cmd)

	m.log.Info("launching game", "game_id", game.ID, "exec", game.Exec, "args", game.Args, "workdir", game.WorkDir)
	if err := cmd.Start(); err != nil {
		m.log.Error("failed to start game", "game_id", game.ID, "error", err)
		return &SpawnError{GameID: game.ID, Exec: game.Exec, Err: err}
	}

	r := &run{
		game:    game,
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	if h, err := gopsproc.NewProcess(int32(r.pid)); err == nil {
		r.handle = h
	} else {
		m.log.Debug("process handle unavailable", "game_id", game.ID, "pid", r.pid, "error", err)
	}
	go r.wait()

	m.cur = r
	m.stopping = false
	return nil
}

// Stop terminates the current game and its descendants: SIGTERM to every
// descendant then to the primary, a bounded wait, then SIGKILL to whatever
// is still alive followed by a second bounded wait. Signal failures are
// logged, never returned. The slot is cleared on every path. Stop on an
// empty slot returns nil without signalling anything.
func (m *Manager) Stop(timeout time.Duration) *Exit {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.cur
	if r == nil {
		return nil
	}
	m.stopping = true
	defer func() {
		m.cur = nil
		m.stopping = false
	}()

	log := m.log.With("game_id", r.game.ID, "pid", r.pid)
	log.Info("stopping current game", "timeout", timeout)
	began := time.Now()

	if !r.exited() {
		deadline := began.Add(timeout)
		kids := m.descendants(r)
		for _, k := range kids {
			if err := m.sig.Terminate(int(k.Pid)); err != nil {
				log.Debug("failed terminating child", "child_pid", k.Pid, "error", err)
			}
		}
		if err := m.sig.Terminate(r.pid); err != nil {
			log.Debug("terminate failed", "error", err)
		}

		primaryGone := r.waitFor(timeout)
		survivors := waitGone(kids, deadline)
		if !primaryGone || len(survivors) > 0 {
			log.Warn("force killing remaining processes", "primary_alive", !primaryGone, "children_alive", len(survivors))
		}
		for _, k := range survivors {
			if err := m.sig.Kill(int(k.Pid)); err != nil {
				log.Debug("kill child failed", "child_pid", k.Pid, "error", err)
			}
		}
		if !primaryGone {
			if err := m.sig.Kill(r.pid); err != nil {
				log.Debug("kill failed", "error", err)
			}
		}
		if !primaryGone || len(survivors) > 0 {
			killDeadline := time.Now().Add(timeout)
			if !primaryGone && !r.waitFor(timeout) {
				log.Error("process still alive after kill; abandoning handle")
			}
			if left := waitGone(survivors, killDeadline); len(left) > 0 {
				log.Error("descendants still alive after kill", "children_alive", len(left))
			}
		}
	}

	exit := &Exit{GameID: r.game.ID, Expected: true}
	if r.exited() {
		exit.ExitCode = r.code
	}
	metrics.ObserveStop(r.game.ID, time.Since(began).Seconds())
	log.Info("game stopped", "exit_code", exit.Code(), "took", time.Since(began))
	return exit
}

// PollExit reports, without blocking, a process that has terminated since
// the last look. It returns nil while the slot is empty or the process is alive.
func (m *Manager) PollExit() *Exit {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.cur
	if r == nil || !r.exited() {
		return nil
	}
	exit := &Exit{GameID: r.game.ID, ExitCode: r.code, Expected: m.stopping}
	m.cur = nil
	m.stopping = false
	return exit
}

// Occupied reports whether a process handle is held, alive or not yet reaped.
func (m *Manager) Occupied() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur != nil
}

// CurrentGameID returns the occupying game's id, or "".
func (m *Manager) CurrentGameID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return ""
	}
	return m.cur.game.ID
}

// PID returns the primary process id, or 0 when the slot is empty.
func (m *Manager) PID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return 0
	}
	return m.cur.pid
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return Status{}
	}
	return Status{
		GameID:    m.cur.game.ID,
		PID:       m.cur.pid,
		Running:   !m.cur.exited(),
		StartedAt: m.cur.started,
	}
}

// descendants lists every process below the primary, depth first.
func (m *Manager) descendants(r *run) []*gopsproc.Process {
	if r.handle == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var out []*gopsproc.Process
	var walk func(p *gopsproc.Process)
	walk = func(p *gopsproc.Process) {
		kids, err := p.ChildrenWithContext(ctx)
		if err != nil {
			// gopsutil reports "no children" as an error too
			return
		}
		for _, k := range kids {
			out = append(out, k)
			walk(k)
		}
	}
	walk(r.handle)
	return out
}

// waitGone polls until every process in ps has exited or deadline passes,
// returning the ones still running.
func waitGone(ps []*gopsproc.Process, deadline time.Time) []*gopsproc.Process {
	alive := ps
	for {
		next := alive[:0:0]
		for _, p := range alive {
			if ok, err := p.IsRunning(); err == nil && ok {
				next = append(next, p)
			}
		}
		alive = next
		if len(alive) == 0 || !time.Now().Before(deadline) {
			return alive
		}
		time.Sleep(20 * time.Millisecond)
	}
}
