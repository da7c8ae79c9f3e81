// SPDX-License-Identifier: Unlicense OR MIT

//go:build linux

package shm

import (
	"golang.org/x/sys/unix"
)

func createAnonymousFile() (int, error) {
	fd, err := unix.MemfdCreate("fbwin-shm", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err == nil {
		return fd, nil
	}
	// Kernels before 3.17 lack memfd_create.
	if err != unix.ENOSYS {
		return -1, err
	}
	return createUnlinkedFile()
}
