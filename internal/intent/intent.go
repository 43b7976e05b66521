// Package intent classifies inbound bus messages into typed intents.
package intent

// Wire values of the "type" field, compared after upper-casing.
const (
	TypeLaunchGame = "LAUNCH_GAME"
	TypeBackHome   = "BACK_HOME"
	TypeQuit       = "QUIT"
)

// Intent is one of LaunchGame, GoHome or Quit.
type Intent interface {
	Type() string
	Origin() string
	intent()
}

// LaunchGame asks for the game matching SpokenName to be started,
// replacing whatever is running.
type LaunchGame struct {
	SpokenName string
	Source     string
}

// GoHome asks for the running game to be stopped.
type GoHome struct {
	Source string
}

// Quit is handled like GoHome; it is kept distinct for logging.
type Quit struct {
	Source string
}

func (LaunchGame) Type() string { return TypeLaunchGame }
func (GoHome) Type() string     { return TypeBackHome }
func (Quit) Type() string       { return TypeQuit }

func (i LaunchGame) Origin() string { return i.Source }
func (i GoHome) Origin() string     { return i.Source }
func (i Quit) Origin() string       { return i.Source }

func (LaunchGame) intent() {}
func (GoHome) intent()     {}
func (Quit) intent()       {}
