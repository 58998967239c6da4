//go:build debug

package debug

import (
	"fmt"
	"sync"

	"github.com/flowmq/flowmq/cmn/nlog"
)

func ON() bool { return true }

func Infof(format string, args ...any) { nlog.InfoDepth(1, fmt.Sprintf(format, args...)) }

func Assert(cond bool, args ...any) {
	if !cond {
		panic(fmt.Sprintln(append([]any{"assertion failed:"}, args...)...))
	}
}

func AssertFunc(f func() bool, args ...any) { Assert(f(), args...) }

func AssertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}

func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// AssertMutexLocked and friends are best-effort: sync.Mutex exposes no public
// "is locked" accessor, so these rely on TryLock, which is itself mutating:
// a successful TryLock means the mutex was NOT held, so it must be released
// again immediately before failing the assertion.
func AssertMutexLocked(m *sync.Mutex) {
	if m.TryLock() {
		m.Unlock()
		Assert(false, "mutex not locked")
	}
}

func AssertRWMutexLocked(m *sync.RWMutex) {
	if m.TryLock() {
		m.Unlock()
		Assert(false, "rwmutex not locked")
	}
}

func AssertRWMutexRLocked(m *sync.RWMutex) {
	if m.TryRLock() {
		m.RUnlock()
		Assert(false, "rwmutex not rlocked")
	}
}
