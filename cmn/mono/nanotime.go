//go:build !mono

package mono

import "time"

// NanoTime is the portable fallback for the linkname'd runtime.nanotime used
// under the `mono` build tag; it is not guaranteed to be monotonic-cheap but
// is always correct.
func NanoTime() int64 { return time.Now().UnixNano() }
