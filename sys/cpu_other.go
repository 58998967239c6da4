//go:build !linux

// Package sys: non-Linux fallback — no cgroup quota to consult.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import (
	"errors"
	"runtime"
)

func isContainerized() bool { return false }

func containerNumCPU() (int, error) {
	return runtime.NumCPU(), errors.New("container CPU detection is linux-only")
}
