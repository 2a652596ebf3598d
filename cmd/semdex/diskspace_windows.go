// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

//go:build windows

package main

import "golang.org/x/sys/windows"

func diskAvailable(path string) (uint64, error) {
	dir, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	var avail uint64
	if err := windows.GetDiskFreeSpaceEx(dir, &avail, nil, nil); err != nil {
		return 0, err
	}
	return avail, nil
}
