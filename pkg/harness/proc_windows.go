//go:build windows

package harness

import (
	"io/fs"
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

func killProcessGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

// isExecutable is always true: Windows has no execute bit to inspect.
func isExecutable(fs.FileInfo) bool {
	return true
}
