package process

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrAlreadyRunning is returned by Start while the slot is occupied.
var ErrAlreadyRunning = errors.New("a game is already running")

// SpawnError reports that the executable could not be started.
type SpawnError struct {
	GameID string
	Exec   string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start game %s (%s): %v", e.GameID, e.Exec, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Exit describes one termination of the supervised process. Expected is
// true only when the termination was initiated by Stop.
type Exit struct {
	GameID   string
	ExitCode *int
	Expected bool
}

// Code renders the exit code for humans, "unknown" when it could not be read.
func (e Exit) Code() string {
	if e.ExitCode == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d", *e.ExitCode)
}

// exitCode follows the shell convention: 128+N when killed by signal N.
func exitCode(ps *os.ProcessState) *int {
	if ps == nil {
		return nil
	}
	code := ps.ExitCode()
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		code = 128 + int(ws.Signal())
	}
	if code < 0 {
		return nil
	}
	return &code
}
