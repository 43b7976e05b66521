//go:build !windows

package process

import "syscall"

type osSignaler struct{}

func (osSignaler) Terminate(pid int) error { return syscall.Kill(pid, syscall.SIGTERM) }
func (osSignaler) Kill(pid int) error      { return syscall.Kill(pid, syscall.SIGKILL) }
