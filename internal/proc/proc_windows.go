//go:build windows

package proc

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

func exists(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// signal terminates pid. Windows has no deliverable SIGTERM for console-less
// processes, so both signal kinds end the process immediately.
func signal(pid int, _ Signal) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
