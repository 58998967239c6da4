// Package sys reports container-aware CPU counts used to size the broker's
// shard pool: the broker runs one shard per CPU hardware thread, and inside
// a cgroup-limited container that must mean the cgroup's quota, not the
// host's full core count.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import (
	"os"
	"runtime"

	"github.com/flowmq/flowmq/cmn/nlog"
)

const maxProcsEnvVar = "GOMAXPROCS"

var (
	contCPUs      int
	containerized bool
)

func init() {
	contCPUs = runtime.NumCPU()
	if containerized = isContainerized(); containerized {
		if c, err := containerNumCPU(); err == nil && c > 0 {
			contCPUs = c
		} else if err != nil {
			nlog.Errorln(err)
		}
	}
}

func Containerized() bool { return containerized }

// NumCPU returns the number of shards to run by default: the container's
// CPU quota if running under one, else runtime.NumCPU().
func NumCPU() int { return contCPUs }

// SetMaxProcs sets GOMAXPROCS = NumCPU unless already overridden via the Go
// environment, so that N shard goroutines actually get N OS threads.
func SetMaxProcs() {
	if val, exists := os.LookupEnv(maxProcsEnvVar); exists {
		nlog.Warningf("GOMAXPROCS is set via Go environment %q: %q", maxProcsEnvVar, val)
		return
	}
	maxprocs := runtime.GOMAXPROCS(0)
	ncpu := NumCPU()
	if maxprocs > ncpu {
		nlog.Warningf("Reducing GOMAXPROCS (%d) to %d (num CPUs)", maxprocs, ncpu)
		runtime.GOMAXPROCS(ncpu)
	}
}
