//go:build !windows

package watcher

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func detachedAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// processAlive sends signal 0 to pid.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
