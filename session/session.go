// Package session implements the per-connection identity and authorization
// envelope: who a connection is, whether it has authenticated, and the
// permission checks every domain operation runs before doing work.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package session

import (
	"sync"

	"github.com/flowmq/flowmq/cmn/cos"
	"github.com/flowmq/flowmq/wire"
)

// Session is the authorization envelope the executor carries alongside every
// command (protocol §3). Only login/logout mutate it, and those mutations
// are serialized within the owning shard — there is no lock here because a
// Session is only ever touched by the one goroutine that owns its connection,
// or as a value-copy snapshot forwarded to another shard (protocol §9:
// "Session as snapshot").
type Session struct {
	ClientID      uint32
	UserID        uint64
	HasUser       bool
	Authenticated bool
	Permissions   wire.Permissions
}

// New creates a fresh, unauthenticated session for a just-accepted connection.
func New(clientID uint32) *Session {
	return &Session{ClientID: clientID}
}

// Snapshot returns a value copy suitable for forwarding to another shard
// (protocol §9). Permissions.Streams is a map; forwarded operations only
// read it, so a shallow copy is sufficient — the owning shard never mutates
// a Permissions value in place, it always replaces it wholesale on login.
func (s *Session) Snapshot() Session {
	return *s
}

// Login marks the session authenticated as the given user with the given
// permission set; called by LoginUser/LoginWithPersonalAccessToken handlers
// after credential verification.
func (s *Session) Login(userID uint64, perms wire.Permissions) {
	s.UserID = userID
	s.HasUser = true
	s.Authenticated = true
	s.Permissions = perms
}

// Logout clears authentication state; idempotent.
func (s *Session) Logout() {
	s.UserID = 0
	s.HasUser = false
	s.Authenticated = false
	s.Permissions = wire.Permissions{}
}

// commandsAllowedBeforeAuth is the exception list from protocol §4.4: ping,
// the two login variants and logout are the only opcodes a
// not-yet-authenticated connection may issue.
var commandsAllowedBeforeAuth = map[wire.OpCode]bool{
	wire.OpPing:                           true,
	wire.OpLoginUser:                      true,
	wire.OpLoginWithPersonalAccessToken:   true,
	wire.OpLogoutUser:                     true,
}

// RequireAuthenticated enforces protocol §4.4: every non-exempt command
// fails Unauthenticated if no user is logged in.
func (s *Session) RequireAuthenticated(op wire.OpCode) error {
	if s.Authenticated {
		return nil
	}
	if commandsAllowedBeforeAuth[op] {
		return nil
	}
	return cos.NewError(cos.KindUnauthenticated, "%s requires an authenticated session", op)
}

// Registry tracks every live Session by client id so that GetClient(s) and
// cross-shard routing (protocol §4.5: "client-targeted commands go to the
// shard that accepted the target client's connection") can look one up.
// It is shared by every shard: executors look sessions up in it, the router
// reads a client's home shard from it, and the server adds and removes
// entries as connections open and close.
type Registry struct {
	mu      sync.RWMutex
	byID    map[uint32]*Session
	shardOf map[uint32]int
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[uint32]*Session), shardOf: make(map[uint32]int)}
}

func (r *Registry) Add(s *Session, shardID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[s.ClientID] = s
	r.shardOf[s.ClientID] = shardID
}

func (r *Registry) Remove(clientID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, clientID)
	delete(r.shardOf, clientID)
}

func (r *Registry) Get(clientID uint32) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[clientID]
	return s, ok
}

func (r *Registry) ShardOf(clientID uint32) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.shardOf[clientID]
	return id, ok
}

func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
