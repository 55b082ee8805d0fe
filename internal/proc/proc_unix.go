//go:build unix

package proc

import (
	"errors"
	"syscall"
)

// exists sends signal 0, which checks for the process without affecting it.
// EPERM means the process exists but belongs to another user.
func exists(pid int) bool {
	err := syscall.Kill(pid, syscall.Signal(0))
	if err != nil && !errors.Is(err, syscall.EPERM) {
		return false
	}
	return !isZombie(pid)
}

func signal(pid int, sig Signal) error {
	switch sig {
	case Kill:
		return syscall.Kill(pid, syscall.SIGKILL)
	default:
		return syscall.Kill(pid, syscall.SIGTERM)
	}
}
