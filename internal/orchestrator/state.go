package orchestrator

import "time"

// Mode is the orchestrator's externally visible phase.
type Mode string

const (
	ModeIdle     Mode = "IDLE"
	ModeStarting Mode = "STARTING"
	ModeRunning  Mode = "RUNNING"
	ModeStopping Mode = "STOPPING"
	ModeError    Mode = "ERROR"
)

// State is what observers see on every transition.
type State struct {
	Mode   Mode    `json:"mode"`
	GameID *string `json:"game_id"`
	Detail string  `json:"detail"`
	TS     float64 `json:"ts"`
}

// Game returns the game id or "".
func (s State) Game() string {
	if s.GameID == nil {
		return ""
	}
	return *s.GameID
}

func newState(mode Mode, gameID, detail string, at time.Time) State {
	s := State{Mode: mode, Detail: detail, TS: float64(at.UnixNano()) / 1e9}
	if gameID != "" {
		s.GameID = &gameID
	}
	return s
}

// Publisher receives every published State, in order, from the control loop.
type Publisher interface {
	Publish(State) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(State) error

func (f PublisherFunc) Publish(s State) error { return f(s) }
