// Package server is the broker's framed TCP (optionally TLS) listener: it
// accepts connections, assigns client ids, reads length-prefixed request
// frames, hands decoded commands to the shard router, and writes reply
// frames back. It enforces the per-connection in-flight limit of 1 by
// construction — a connection's read loop blocks on the shard reply before
// it reads the next frame.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package server

import (
	"context"
	"crypto/tls"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/flowmq/flowmq/cmn"
	"github.com/flowmq/flowmq/cmn/cos"
	"github.com/flowmq/flowmq/cmn/nlog"
	"github.com/flowmq/flowmq/reply"
	"github.com/flowmq/flowmq/session"
	"github.com/flowmq/flowmq/shard"
	"github.com/flowmq/flowmq/wire"
)

type Server struct {
	cfg     *cmn.Config
	router  *shard.Router
	clients *session.Registry

	ln           net.Listener
	nextClientID atomic.Uint32
	nextShard    atomic.Uint32
}

func New(cfg *cmn.Config, router *shard.Router, clients *session.Registry) *Server {
	return &Server{cfg: cfg, router: router, clients: clients}
}

// Listen binds the configured TCP address, wrapping it in TLS when enabled.
// Split from Serve so callers (and tests) can read the bound address before
// accepting.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.Net.Address)
	if err != nil {
		return errors.Wrapf(err, "listen on %q", s.cfg.Net.Address)
	}
	if s.cfg.Net.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.Net.TLS.CertFile, s.cfg.Net.TLS.KeyFile)
		if err != nil {
			ln.Close()
			return errors.Wrap(err, "load TLS key pair")
		}
		ln = tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}})
	}
	s.ln = ln
	nlog.Infof("listening on %s (tls=%v)", ln.Addr(), s.cfg.Net.TLS.Enabled)
	return nil
}

func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until ctx is canceled or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || cos.IsErrClosedConn(err) {
				return nil
			}
			if cos.IsRetriableConnErr(err) {
				nlog.Warningf("accept: %v", err)
				continue
			}
			return errors.Wrap(err, "accept")
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn owns one connection for its lifetime. The connection's home
// shard is assigned round-robin at accept time and recorded in the client
// registry so client-targeted commands can find it (protocol §4.5).
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	clientID := s.nextClientID.Add(1)
	home := int(s.nextShard.Add(1)-1) % s.router.NumShards()
	sess := session.New(clientID)
	s.clients.Add(sess, home)
	nlog.Infof("client %d connected from %s (home shard %d)", clientID, conn.RemoteAddr(), home)
	defer func() {
		s.clients.Remove(clientID)
		conn.Close()
		nlog.Infof("client %d disconnected", clientID)
	}()

	keepalive := s.cfg.Keepalive()
	if keepalive <= 0 {
		keepalive = cmn.Rom.Keepalive()
	}
	for {
		if err := conn.SetReadDeadline(time.Now().Add(keepalive)); err != nil {
			return
		}
		op, payload, err := wire.ReadRequest(conn)
		if err != nil {
			if !cos.IsEOF(err) && ctx.Err() == nil {
				nlog.Warningf("client %d: read: %v", clientID, err)
				// a framing error desyncs the stream: reply once, then close
				_ = wire.WriteReply(conn, cos.KindOf(err).Code(), nil)
			}
			return
		}

		cmd, err := wire.Decode(op, payload)
		if err != nil {
			// decode errors keep the connection open (protocol §7)
			if werr := wire.WriteReply(conn, cos.KindOf(err).Code(), nil); werr != nil {
				return
			}
			continue
		}

		body, err := s.execute(ctx, cmd, sess, clientID, home)
		status := uint32(0)
		if err != nil {
			status = cos.KindOf(err).Code()
			body = nil
		}
		if err := wire.WriteReply(conn, status, body); err != nil {
			return
		}
	}
}

func (s *Server) execute(ctx context.Context, cmd wire.Command, sess *session.Session, clientID uint32, home int) ([]byte, error) {
	// Checked before routing so that a rejected CreateStream does not take
	// a stream id from the router.
	if err := sess.RequireAuthenticated(cmd.OpCode()); err != nil {
		return nil, err
	}
	if _, ok := cmd.(wire.GetStreams); ok {
		return s.scatterStreams(ctx, sess, clientID)
	}
	routed, target := s.router.Route(cmd, home)
	res, err := s.dispatch(ctx, routed, sess.Snapshot(), clientID, target)
	if err != nil {
		return nil, err
	}
	return res.Body, res.Err
}

// dispatch enqueues one frame and blocks for its reply; ctx cancellation
// abandons the wait (the shard discards the late reply per protocol §5).
func (s *Server) dispatch(ctx context.Context, cmd wire.Command, snap session.Session, clientID uint32, target int) (shard.Reply, error) {
	frame := shard.Frame{Cmd: cmd, Session: snap, ClientID: clientID, Reply: make(chan shard.Reply, 1)}
	select {
	case s.router.Inbox(target) <- frame:
	case <-ctx.Done():
		return shard.Reply{}, ctx.Err()
	}
	select {
	case res := <-frame.Reply:
		return res, nil
	case <-ctx.Done():
		return shard.Reply{}, ctx.Err()
	}
}

// scatterStreams fans GetStreams out to every shard and merges the
// count-prefixed bodies: no single shard's index holds the full stream set.
func (s *Server) scatterStreams(ctx context.Context, sess *session.Session, clientID uint32) ([]byte, error) {
	snap := sess.Snapshot()
	bodies := make([][]byte, 0, s.router.NumShards())
	for i := 0; i < s.router.NumShards(); i++ {
		res, err := s.dispatch(ctx, wire.GetStreams{}, snap, clientID, i)
		if err != nil {
			return nil, err
		}
		if res.Err != nil {
			return nil, res.Err
		}
		bodies = append(bodies, res.Body)
	}
	return reply.MergeCountPrefixed(bodies), nil
}
