package nlog

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/flowmq/flowmq/cmn/mono"
)

const (
	flushEvery  = 4096 // bytes: flush once the buffer grows past this
	maxLineSize = 2 * 1024
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
	numSev
)

func (s severity) tag() byte {
	switch s {
	case sevInfo:
		return 'I'
	case sevWarn:
		return 'W'
	default:
		return 'E'
	}
}

type writer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	file  *os.File
	last  int64
	sev   severity
	inits sync.Once
}

var (
	writers      [numSev]*writer
	toStderr     bool
	alsoToStderr bool
	logDir       string
	role_        string
	title        string
)

func init() {
	for s := severity(0); s < numSev; s++ {
		writers[s] = &writer{sev: s}
	}
}

func sname() string {
	if role_ == "" {
		return "flowmq"
	}
	return role_
}

func (w *writer) openLocked() {
	if toStderr || logDir == "" {
		return
	}
	name := fmt.Sprintf("%s.%c.log", sname(), w.sev.tag())
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err == nil {
		w.file = f
	}
}

func (w *writer) flushLocked() {
	if w.buf.Len() == 0 {
		return
	}
	if toStderr || alsoToStderr || w.file == nil {
		os.Stderr.Write(w.buf.Bytes())
	}
	if w.file != nil {
		w.file.Write(w.buf.Bytes())
	}
	w.buf.Reset()
	w.last = mono.NanoTime()
}

func (w *writer) since(now int64) time.Duration {
	w.mu.Lock()
	last := w.last
	w.mu.Unlock()
	if last == 0 {
		return 0
	}
	return time.Duration(now - last)
}

func closeFiles() {
	for _, w := range writers {
		w.mu.Lock()
		if w.file != nil {
			w.file.Sync()
			w.file.Close()
			w.file = nil
		}
		w.mu.Unlock()
	}
}

func log(sev severity, depth int, format string, args ...any) {
	w := writers[sev]
	w.inits.Do(func() {
		w.mu.Lock()
		w.openLocked()
		w.mu.Unlock()
	})

	var line bytes.Buffer
	now := time.Now()
	_, file, ln, ok := runtime.Caller(depth + 2)
	if !ok {
		file, ln = "???", 0
	} else {
		file = filepath.Base(file)
	}
	fmt.Fprintf(&line, "%c%s %s:%d] ", sev.tag(), now.Format("0102 15:04:05.000000"), file, ln)
	if format == "" {
		fmt.Fprintln(&line, args...)
	} else {
		fmt.Fprintf(&line, format, args...)
		line.WriteByte('\n')
	}
	if line.Len() > maxLineSize {
		line.Truncate(maxLineSize)
		line.WriteByte('\n')
	}

	w.mu.Lock()
	w.buf.Write(line.Bytes())
	if w.buf.Len() >= flushEvery || !flag.Parsed() {
		w.flushLocked()
	}
	w.mu.Unlock()
}
