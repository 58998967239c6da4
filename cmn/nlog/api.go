// Package nlog is flowmq's process logger: buffered, leveled, timestamped
// writes to a log file (or stderr), shared by every shard and by the control
// plane so diagnostics never depend on a goroutine-unsafe bare `log.Printf`.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"flag"
	"time"

	"github.com/flowmq/flowmq/cmn/mono"
)

func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of files")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as files")
}

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

// SetPre sets the log directory and file-name prefix (role), e.g. ("/var/log/flowmq", "shard0").
func SetPre(dir, role string) { logDir, role_ = dir, role }

func SetTitle(s string) { title = s }

// Flush forces the buffered writers out; pass true on process exit.
func Flush(exit bool) {
	now := mono.NanoTime()
	for _, sev := range []severity{sevInfo, sevWarn, sevErr} {
		w := writers[sev]
		w.mu.Lock()
		if w.buf.Len() > 0 || exit {
			w.flushLocked()
		}
		w.mu.Unlock()
		_ = now
	}
	if exit {
		closeFiles()
	}
}

func Since() time.Duration {
	now := mono.NanoTime()
	var max time.Duration
	for _, sev := range []severity{sevInfo, sevWarn, sevErr} {
		if d := writers[sev].since(now); d > max {
			max = d
		}
	}
	return max
}
