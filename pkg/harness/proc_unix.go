//go:build !windows

package harness

import (
	"io/fs"
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup signals the whole group so grandchildren spawned by a
// test script die with it.
func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// isExecutable applies the permission bit matching the caller's relation
// to the file owner. Root may run anything with a user or group bit set.
func isExecutable(info fs.FileInfo) bool {
	mode := info.Mode().Perm()
	if mode&0o001 != 0 {
		return true
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return mode&0o111 != 0
	}
	uid := os.Getuid()
	switch {
	case mode&0o010 != 0 && int(st.Gid) == os.Getgid():
		return true
	case mode&0o100 != 0 && int(st.Uid) == uid:
		return true
	case mode&0o110 != 0 && uid == 0:
		return true
	}
	return false
}
