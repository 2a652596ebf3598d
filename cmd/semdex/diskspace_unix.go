// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build linux || darwin

package main

import "golang.org/x/sys/unix"

func diskAvailable(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize), nil //nolint:unconvert
}
