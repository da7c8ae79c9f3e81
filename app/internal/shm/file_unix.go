// SPDX-License-Identifier: Unlicense OR MIT

//go:build unix

package shm

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// createUnlinkedFile creates a uniquely named file in the runtime
// directory and unlinks it, leaving only the descriptor.
func createUnlinkedFile() (int, error) {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/dev/shm"
	}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for retries := 100; retries > 0; retries-- {
		name := filepath.Join(dir, fmt.Sprintf("fbwin-shm-%06x", rnd.Intn(1<<24)))
		fd, err := unix.Open(name, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0600)
		if err == unix.EEXIST {
			continue
		}
		if err != nil {
			return -1, err
		}
		unix.Unlink(name)
		return fd, nil
	}
	return -1, unix.EEXIST
}

// allocate returns a descriptor for an anonymous file of size bytes.
func allocate(size int) (int, error) {
	fd, err := createAnonymousFile()
	if err != nil {
		return -1, fmt.Errorf("shm: create file: %w", err)
	}
	for {
		err = unix.Ftruncate(fd, int64(size))
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("shm: ftruncate: %w", err)
	}
	return fd, nil
}
