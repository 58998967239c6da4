//go:build mono

// Package mono provides low-level monotonic time, used for message and
// consumer-offset timestamps, append-latency accounting, and the nlog
// writer's flush-age check.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import (
	_ "unsafe" // for go:linkname
)

// https://golang.org/pkg/runtime/?m=all#nanotime
//
//go:linkname NanoTime runtime.nanotime
func NanoTime() int64
