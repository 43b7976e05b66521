//go:build windows

package process

import "os"

// Windows has no SIGTERM; both steps end the process.
type osSignaler struct{}

func (osSignaler) Terminate(pid int) error { return kill(pid) }
func (osSignaler) Kill(pid int) error      { return kill(pid) }

func kill(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
