// Package cos provides common low-level types and utilities shared by every
// flowmq package: the broker's typed error kinds, connection-error
// classification, id generation, and the handful of string/byte helpers that
// would otherwise be copy-pasted into every package.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"syscall"

	"github.com/flowmq/flowmq/cmn/nlog"
)

// Kind is the closed set of broker error kinds (protocol §7). Stable
// numeric values: Code() puts a Kind's value unchanged into the reply's
// status field, so renumbering a Kind changes the wire protocol.
type Kind int

const (
	KindInvalidCommand Kind = iota + 1
	KindUnauthenticated
	KindUnauthorized
	KindNotFound
	KindAlreadyExists
	KindInvalidConfiguration
	KindResourceBusy
	KindStorageFailure
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCommand:
		return "InvalidCommand"
	case KindUnauthenticated:
		return "Unauthenticated"
	case KindUnauthorized:
		return "Unauthorized"
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindInvalidConfiguration:
		return "InvalidConfiguration"
	case KindResourceBusy:
		return "ResourceBusy"
	case KindStorageFailure:
		return "StorageFailure"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Code returns the dense, stable status code placed in the wire reply's
// status:u32_le field. 0 is reserved for success.
func (k Kind) Code() uint32 { return uint32(k) }

// BrokerError is the single error type every flowmq-facing API returns: a
// kind plus an optional human message, never transmitted beyond Code() on
// the wire (protocol §7: "Client sees only the code; the broker logs the
// message").
type BrokerError struct {
	Kind Kind
	Msg  string
}

func NewError(kind Kind, format string, a ...any) *BrokerError {
	return &BrokerError{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

func (e *BrokerError) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

// Is supports errors.Is(err, cos.NewError(cos.KindNotFound, "")) style checks
// by comparing only the Kind, so call sites need not construct a message.
func (e *BrokerError) Is(target error) bool {
	t, ok := target.(*BrokerError)
	return ok && t.Kind == e.Kind
}

func KindOf(err error) Kind {
	var be *BrokerError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

func IsKind(err error, k Kind) bool { return KindOf(err) == k }

//
// Errs: bounded multi-error aggregation (e.g. shard shutdown draining
// multiple in-flight forwards that all fail).
//

const maxErrs = 4

type Errs struct {
	errs []error
	mu   sync.Mutex
}

func (e *Errs) Add(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
	}
}

func (e *Errs) Cnt() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs)
}

func (e *Errs) JoinErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.errs) == 0 {
		return nil
	}
	return errors.Join(e.errs...)
}

//
// connection-error classification, used by the TCP listener to decide
// whether to log-and-close versus log-and-continue.
//

func IsErrConnectionRefused(err error) bool { return errors.Is(err, syscall.ECONNREFUSED) }
func IsErrConnectionReset(err error) bool   { return errors.Is(err, syscall.ECONNRESET) }
func IsErrBrokenPipe(err error) bool        { return errors.Is(err, syscall.EPIPE) }

func IsRetriableConnErr(err error) bool {
	return IsErrConnectionRefused(err) || IsErrConnectionReset(err) || IsErrBrokenPipe(err)
}

func IsEOF(err error) bool {
	return err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func IsErrClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

//
// abnormal termination
//

const fatalPrefix = "FATAL ERROR: "

func ExitLogf(f string, a ...any) {
	msg := fmt.Sprintf(fatalPrefix+f, a...)
	if flag.Parsed() {
		nlog.ErrorDepth(1, msg)
		nlog.Flush(true)
	}
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
