//go:build windows
// +build windows

package logging

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"
)

var (
	kernel32         = syscall.NewLazyDLL("kernel32.dll")
	procLockFileEx   = kernel32.NewProc("LockFileEx")
	procUnlockFileEx = kernel32.NewProc("UnlockFileEx")
)

const (
	lockfileExclusiveLock = 0x00000002
)

// FileLock provides Windows file locking via LockFileEx.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a lock file for exclusive access control.
func NewFileLock(basePath string) (*FileLock, error) {
	lockPath := basePath + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating lock file: %w", err)
	}
	return &FileLock{path: lockPath, file: f}, nil
}

// Lock acquires an exclusive lock, blocking until available.
func (fl *FileLock) Lock() error {
	var overlapped syscall.Overlapped
	r1, _, err := procLockFileEx.Call(
		uintptr(fl.file.Fd()),
		uintptr(lockfileExclusiveLock),
		uintptr(0),
		uintptr(1),
		uintptr(0),
		uintptr(unsafe.Pointer(&overlapped)),
	)
	if r1 == 0 {
		return fmt.Errorf("acquiring lock: %w", err)
	}
	return nil
}

// Unlock releases the lock and removes the lock file.
func (fl *FileLock) Unlock() error {
	var overlapped syscall.Overlapped
	r1, _, err := procUnlockFileEx.Call(
		uintptr(fl.file.Fd()),
		uintptr(0),
		uintptr(1),
		uintptr(0),
		uintptr(unsafe.Pointer(&overlapped)),
	)
	fl.file.Close()
	os.Remove(fl.path)
	if r1 == 0 {
		return fmt.Errorf("unlocking: %w", err)
	}
	return nil
}
