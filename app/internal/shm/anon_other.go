// SPDX-License-Identifier: Unlicense OR MIT

//go:build unix && !linux

package shm

func createAnonymousFile() (int, error) {
	return createUnlinkedFile()
}
