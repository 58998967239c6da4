// Package sys: Linux-specific cgroup CPU-quota detection.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package sys

import (
	"bufio"
	"errors"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/flowmq/flowmq/cmn/nlog"
)

const (
	rootProcess   = "/proc/1/cgroup"
	contCPULimit  = "/sys/fs/cgroup/cpu/cpu.cfs_quota_us"
	contCPUPeriod = "/sys/fs/cgroup/cpu/cpu.cfs_period_us"
)

// isContainerized returns true if the process is running inside a container
// (docker/lxc/kube), per the heuristic in
// https://stackoverflow.com/questions/20010199
func isContainerized() (yes bool) {
	f, err := os.Open(rootProcess)
	if err != nil {
		return false
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, "docker") || strings.Contains(line, "lxc") || strings.Contains(line, "kube") {
			return true
		}
	}
	if err := sc.Err(); err != nil {
		nlog.Errorf("failed to read %s: %v", rootProcess, err)
	}
	return false
}

func readOneInt64(path string) (int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
}

func readOneUint64(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
}

// containerNumCPU returns an approximate number of CPUs allocated to the
// container. By default a container runs without limits (cfs_quota_us is
// negative); when limited, the quota is between 0.01 CPU and the host's full
// core count. The result rounds up.
func containerNumCPU() (int, error) {
	quotaInt, err := readOneInt64(contCPULimit)
	if err != nil {
		return 0, err
	}
	if quotaInt <= 0 {
		return runtime.NumCPU(), nil
	}
	period, err := readOneUint64(contCPUPeriod)
	if err != nil {
		return 0, err
	}
	if period == 0 {
		return 0, errors.New("failed to read container CPU info: zero period")
	}
	approx := (uint64(quotaInt) + period - 1) / period
	if approx < 1 {
		approx = 1
	}
	return int(approx), nil
}
