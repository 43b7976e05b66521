// Package orchestrator drives the launch/stop state machine for the single
// supervised game and publishes every transition.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/launchr/internal/intent"
	"github.com/loykin/launchr/internal/manifest"
	"github.com/loykin/launchr/internal/metrics"
	"github.com/loykin/launchr/internal/process"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultQueueSize    = 64

	replayQueue = 4
)

// Resolver maps spoken text to a game.
type Resolver interface {
	Resolve(spoken string) (manifest.GameEntry, bool)
}

// Processes is the single-slot process owner.
type Processes interface {
	Start(game manifest.GameEntry) error
	Stop(timeout time.Duration) *process.Exit
	PollExit() *process.Exit
	Occupied() bool
	CurrentGameID() string
}

// HealthWaiter blocks until a started game is ready.
type HealthWaiter interface {
	WaitUntilHealthy(game manifest.GameEntry) error
}

type Config struct {
	PollInterval time.Duration
	StopTimeout  time.Duration
	QueueSize    int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = process.DefaultStopTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

// Orchestrator owns every transition. All process actions happen on the
// goroutine running Run, so intents and exit polls never interleave.
type Orchestrator struct {
	games  Resolver
	procs  Processes
	health HealthWaiter
	cfg    Config
	router *intent.Router
	inbox  chan []byte
	replay chan Publisher
	now    func() time.Time

	log  *slog.Logger
	ilog *slog.Logger // scoped to the intent being handled

	pubMu sync.RWMutex
	pubs  []Publisher

	stateMu sync.RWMutex
	state   State
}

func New(games Resolver, procs Processes, health HealthWaiter, cfg Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	o := &Orchestrator{
		games:  games,
		procs:  procs,
		health: health,
		cfg:    cfg,
		inbox:  make(chan []byte, cfg.QueueSize),
		replay: make(chan Publisher, replayQueue),
		now:    time.Now,
		log:    log.With("component", "orchestrator"),
	}
	o.ilog = o.log
	o.router = intent.NewRouter(o.onLaunch, o.onExit, log)
	o.state = newState(ModeIdle, "", "", o.now())
	return o
}

// AddPublisher registers an observer. Call before Run.
func (o *Orchestrator) AddPublisher(p ...Publisher) {
	o.pubMu.Lock()
	o.pubs = append(o.pubs, p...)
	o.pubMu.Unlock()
}

// Snapshot returns the last published state.
func (o *Orchestrator) Snapshot() State {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state
}

// Deliver queues a raw inbound payload. It never blocks; false means the
// queue was full and the payload was dropped.
func (o *Orchestrator) Deliver(payload []byte) bool {
	select {
	case o.inbox <- payload:
		return true
	default:
		o.log.Warn("intent queue full, dropping payload", "size", len(payload))
		return false
	}
}

// Republish asks the control loop to send the current state to p again,
// typically after p's transport reconnects. Going through the loop keeps the
// replay ordered with live transitions. It never blocks; false means the
// request was dropped.
func (o *Orchestrator) Republish(p Publisher) bool {
	select {
	case o.replay <- p:
		return true
	default:
		o.log.Warn("republish queue full, dropping request")
		return false
	}
}

// Run is the control loop. It returns after ctx is cancelled, once any
// running game has been stopped.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info("starting orchestrator loop", "poll_interval", o.cfg.PollInterval)
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case payload := <-o.inbox:
			o.pollExit()
			o.handle(payload)
		case p := <-o.replay:
			s := o.Snapshot()
			if err := p.Publish(s); err != nil {
				o.log.Warn("failed to republish state", "mode", s.Mode, "error", err)
			}
		case <-ticker.C:
			o.pollExit()
		}
	}
}

func (o *Orchestrator) handle(payload []byte) {
	o.ilog = o.log.With("intent_id", uuid.NewString())
	defer func() { o.ilog = o.log }()
	o.router.Dispatch(payload)
}

func (o *Orchestrator) shutdown() {
	o.log.Info("shutting down orchestrator")
	if exit := o.procs.Stop(o.cfg.StopTimeout); exit != nil {
		o.onProcessExit(exit)
	}
}

func (o *Orchestrator) pollExit() {
	if exit := o.procs.PollExit(); exit != nil {
		o.onProcessExit(exit)
	}
}

func (o *Orchestrator) onLaunch(in intent.LaunchGame) {
	log := o.ilog.With("source", in.Source)
	game, ok := o.games.Resolve(in.SpokenName)
	if !ok {
		err := fmt.Errorf("%w: %s", manifest.ErrUnknownGame, in.SpokenName)
		log.Warn("launch rejected", "spoken", in.SpokenName, "error", err)
		metrics.IncLaunch("", "unknown")
		o.publish(ModeError, "", err.Error())
		return
	}
	log = log.With("game_id", game.ID)

	if o.procs.Occupied() {
		log.Info("swapping games", "from", o.procs.CurrentGameID())
		o.publish(ModeStopping, "", "")
		if exit := o.procs.Stop(o.cfg.StopTimeout); exit != nil {
			// the Starting publication below supersedes this exit's Idle
			o.recordExit(exit)
		}
	}

	log.Info("launching game")
	o.publish(ModeStarting, game.ID, "")
	if err := o.procs.Start(game); err != nil {
		if errors.Is(err, process.ErrAlreadyRunning) {
			log.Error("slot occupied after stop; invariant violated", "error", err)
		}
		o.launchFailed(log, game, "spawn_error", err)
		return
	}
	if err := o.health.WaitUntilHealthy(game); err != nil {
		o.launchFailed(log, game, "unhealthy", err)
		return
	}
	metrics.IncLaunch(game.ID, "ok")
	o.publish(ModeRunning, game.ID, "")
}

func (o *Orchestrator) launchFailed(log *slog.Logger, game manifest.GameEntry, result string, err error) {
	log.Error("launch failed", "result", result, "error", err)
	metrics.IncLaunch(game.ID, result)
	o.publish(ModeError, game.ID, err.Error())
	if exit := o.procs.Stop(o.cfg.StopTimeout); exit != nil {
		o.onProcessExit(exit)
	}
}

func (o *Orchestrator) onExit(in intent.Intent) {
	log := o.ilog.With("source", in.Origin(), "type", in.Type())
	if !o.procs.Occupied() {
		log.Info("received exit intent while idle")
		o.publish(ModeIdle, "", "")
		return
	}
	log.Info("stopping game due to exit intent", "game_id", o.procs.CurrentGameID())
	o.publish(ModeStopping, "", "")
	exit := o.procs.Stop(o.cfg.StopTimeout)
	if exit == nil {
		// the child vanished between the occupancy check and Stop
		o.publish(ModeIdle, "", "")
		return
	}
	o.onProcessExit(exit)
}

// onProcessExit maps every exit record to Idle; crashes carry a detail.
func (o *Orchestrator) onProcessExit(exit *process.Exit) {
	o.recordExit(exit)
	if exit.Expected {
		o.publish(ModeIdle, "", "")
		return
	}
	id := exit.GameID
	if id == "" {
		id = "unknown"
	}
	o.publish(ModeIdle, "", fmt.Sprintf("game %s crashed (code=%s)", id, exit.Code()))
}

func (o *Orchestrator) recordExit(exit *process.Exit) {
	metrics.IncExit(exit.GameID, exit.Expected)
	if exit.Expected {
		o.ilog.Info("game exited", "game_id", exit.GameID, "exit_code", exit.Code())
		return
	}
	o.ilog.Error("game crashed", "game_id", exit.GameID, "exit_code", exit.Code())
}

// publish records and fans out a new state. An empty gameID falls back to
// the game currently holding the slot.
func (o *Orchestrator) publish(mode Mode, gameID, detail string) {
	if gameID == "" {
		gameID = o.procs.CurrentGameID()
	}
	s := newState(mode, gameID, detail, o.now())

	o.stateMu.Lock()
	prev := o.state.Mode
	o.state = s
	o.stateMu.Unlock()

	metrics.SetMode(string(prev), string(mode))
	o.ilog.Debug("publishing state", "mode", mode, "game_id", gameID, "detail", detail)

	o.pubMu.RLock()
	pubs := o.pubs
	o.pubMu.RUnlock()
	for _, p := range pubs {
		if err := p.Publish(s); err != nil {
			o.ilog.Warn("failed to publish state", "mode", mode, "error", err)
		}
	}
}
