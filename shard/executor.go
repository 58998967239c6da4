package shard

import (
	"context"
	"encoding/binary"
	"strconv"

	"github.com/flowmq/flowmq/broker"
	"github.com/flowmq/flowmq/cmn/cos"
	"github.com/flowmq/flowmq/cmn/debug"
	"github.com/flowmq/flowmq/cmn/nlog"
	"github.com/flowmq/flowmq/reply"
	"github.com/flowmq/flowmq/session"
	"github.com/flowmq/flowmq/wire"
)

// Executor is the single-threaded loop bound to one shard: it owns one
// broker.Broker (and therefore one Index) and drains exactly one Router
// inbox, run-to-completion per frame, with no goroutines spawned for command
// execution (protocol §5: "no additional goroutines are spawned within a
// shard for command execution").
type Executor struct {
	ID     int
	Broker *broker.Broker
	Router *Router
	inbox  chan Frame
}

func NewExecutor(id int, b *broker.Broker, r *Router) *Executor {
	return &Executor{ID: id, Broker: b, Router: r, inbox: r.Inbox(id)}
}

// Run drains the inbox until ctx is done. It is the only goroutine that
// ever touches e.Broker.Index.
func (e *Executor) Run(ctx context.Context) {
	depth := e.Broker.Metrics.ShardInboxDepth.WithLabelValues(strconv.Itoa(e.ID))
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-e.inbox:
			depth.Set(float64(len(e.inbox)))
			e.handle(ctx, f)
		}
	}
}

// handle recovers panics at the dispatch boundary (protocol §4.6, §7: "shard
// catches at the dispatch boundary, logs, and continues") and sends exactly
// one reply, unless the caller has already walked away (reply channel send
// is best-effort per protocol §5's cancellation rule: "a shard that
// completes an operation after cancellation discards the reply silently").
func (e *Executor) handle(ctx context.Context, f Frame) {
	var r Reply
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				nlog.Errorf("shard %d: recovered panic dispatching %s: %v", e.ID, f.Cmd.OpCode(), rec)
				r = Reply{Err: cos.NewError(cos.KindInternal, "internal error")}
			}
		}()
		r.Body, r.Err = e.dispatch(ctx, f)
	}()
	result := "ok"
	if r.Err != nil {
		result = cos.KindOf(r.Err).String()
	}
	e.Broker.Metrics.CommandsProcessed.WithLabelValues(f.Cmd.OpCode().String(), result).Inc()
	select {
	case f.Reply <- r:
	default:
		select {
		case f.Reply <- r:
		case <-ctx.Done():
		}
	}
}

// forward hands cmd to another shard (always the control shard, in this
// revision) and blocks for its reply, realizing "Session as snapshot"
// (protocol §9): the session value is copied, never shared.
func (e *Executor) forward(target int, cmd wire.Command, sess session.Session, clientID uint32) Reply {
	replyCh := make(chan Reply, 1)
	e.Router.Inbox(target) <- Frame{Cmd: cmd, Session: sess, ClientID: clientID, Reply: replyCh}
	return <-replyCh
}

// dispatch is the total function over command variants required by protocol
// §4.6: every case produces a body or an error, none fall through to
// another, and the default arm is reached only for an opcode wire.Decode
// could not have produced (closed variant set, protocol §9: "Tagged
// variants for commands").
func (e *Executor) dispatch(ctx context.Context, f Frame) ([]byte, error) {
	sess := f.Session
	if err := sess.RequireAuthenticated(f.Cmd.OpCode()); err != nil {
		return nil, err
	}

	switch cmd := f.Cmd.(type) {

	case wire.Ping:
		return reply.Empty, nil

	case wire.GetStats:
		return e.controlDispatch(cmd, f, func() ([]byte, error) {
			return reply.Stats(e.Broker.Stats()), nil
		})

	case wire.GetMe:
		s, ok := e.Broker.Clients.Get(f.ClientID)
		if !ok {
			return nil, cos.NewError(cos.KindNotFound, "client %d not found", f.ClientID)
		}
		return reply.Client(sessionClientRecord(s)), nil

	case wire.GetClient:
		target, ok := e.Router.RouteClient(cmd.ClientID)
		if !ok {
			return nil, cos.NewError(cos.KindNotFound, "client %d not found", cmd.ClientID)
		}
		if target != e.ID {
			r := e.forward(target, cmd, sess, f.ClientID)
			return r.Body, r.Err
		}
		s, ok := e.Broker.Clients.Get(cmd.ClientID)
		if !ok {
			return nil, cos.NewError(cos.KindNotFound, "client %d not found", cmd.ClientID)
		}
		return reply.Client(sessionClientRecord(s)), nil

	case wire.GetClients:
		return e.controlDispatch(cmd, f, func() ([]byte, error) {
			all := e.Broker.Clients.All()
			out := make([]*broker.ClientRecord, len(all))
			for i, s := range all {
				out[i] = sessionClientRecord(s)
			}
			return reply.Clients(out), nil
		})

	//
	// Auth
	//

	case wire.LoginUser:
		userID, perms, err := e.resolveLogin(cmd, f)
		if err != nil {
			return nil, err
		}
		e.applyLogin(f.ClientID, userID, perms)
		return reply.LoginIdentity(userID, perms), nil

	case wire.LoginWithPersonalAccessToken:
		userID, perms, err := e.resolveLogin(cmd, f)
		if err != nil {
			return nil, err
		}
		e.applyLogin(f.ClientID, userID, perms)
		return reply.LoginIdentity(userID, perms), nil

	case wire.LogoutUser:
		if s, ok := e.Broker.Clients.Get(f.ClientID); ok {
			s.Logout()
		}
		return reply.Empty, nil

	//
	// Users (control shard only)
	//

	case wire.CreateUser:
		return e.controlDispatch(cmd, f, func() ([]byte, error) {
			if !sess.Permissions.Global.Has(wire.PermManageUsers) {
				return nil, cos.NewError(cos.KindUnauthorized, "CreateUser requires the users:manage permission")
			}
			u, err := e.Broker.Users.Create(cmd.Username, cmd.Password, cmd.Status, cmd.Permissions)
			if err != nil {
				return nil, err
			}
			return reply.UserWithPermissions(u), nil
		})

	case wire.DeleteUser:
		return e.controlDispatch(cmd, f, func() ([]byte, error) {
			if !sess.Permissions.Global.Has(wire.PermManageUsers) {
				return nil, cos.NewError(cos.KindUnauthorized, "DeleteUser requires the users:manage permission")
			}
			return reply.Empty, e.Broker.Users.Delete(cmd.UserID)
		})

	case wire.GetUser:
		return e.controlDispatch(cmd, f, func() ([]byte, error) {
			u, err := e.Broker.Users.Get(cmd.UserID)
			if err != nil {
				return nil, err
			}
			return reply.UserWithPermissions(u), nil
		})

	case wire.GetUsers:
		return e.controlDispatch(cmd, f, func() ([]byte, error) {
			return reply.Users(e.Broker.Users.All()), nil
		})

	case wire.UpdateUser:
		return e.controlDispatch(cmd, f, func() ([]byte, error) {
			if !sess.Permissions.Global.Has(wire.PermManageUsers) {
				return nil, cos.NewError(cos.KindUnauthorized, "UpdateUser requires the users:manage permission")
			}
			u, err := e.Broker.Users.Update(cmd.UserID, cmd.Username, cmd.Status)
			if err != nil {
				return nil, err
			}
			return reply.User(u), nil
		})

	case wire.UpdatePermissions:
		return e.controlDispatch(cmd, f, func() ([]byte, error) {
			if !sess.Permissions.Global.Has(wire.PermManageUsers) {
				return nil, cos.NewError(cos.KindUnauthorized, "UpdatePermissions requires the users:manage permission")
			}
			u, err := e.Broker.Users.UpdatePermissions(cmd.UserID, cmd.Permissions)
			if err != nil {
				return nil, err
			}
			return reply.UserWithPermissions(u), nil
		})

	case wire.ChangePassword:
		return e.controlDispatch(cmd, f, func() ([]byte, error) {
			return reply.Empty, e.Broker.Users.ChangePassword(cmd.UserID, cmd.CurrentPassword, cmd.NewPassword)
		})

	//
	// Personal access tokens (control shard only)
	//

	case wire.CreatePersonalAccessToken:
		return e.controlDispatch(cmd, f, func() ([]byte, error) {
			if !sess.HasUser {
				return nil, cos.NewError(cos.KindUnauthenticated, "CreatePersonalAccessToken requires an authenticated user")
			}
			raw, err := e.Broker.PATs.Create(uint32(sess.UserID), cmd.Name, cmd.Expiry)
			if err != nil {
				return nil, err
			}
			return reply.CreatedPersonalAccessToken(raw), nil
		})

	case wire.DeletePersonalAccessToken:
		return e.controlDispatch(cmd, f, func() ([]byte, error) {
			return reply.Empty, e.Broker.PATs.Delete(uint32(sess.UserID), cmd.Name)
		})

	case wire.GetPersonalAccessTokens:
		return e.controlDispatch(cmd, f, func() ([]byte, error) {
			return reply.PersonalAccessTokens(e.Broker.PATs.List(uint32(sess.UserID))), nil
		})

	//
	// Streams
	//

	case wire.CreateStream:
		if !sess.Permissions.Global.Has(wire.PermManageStreams) {
			return nil, cos.NewError(cos.KindUnauthorized, "CreateStream requires the streams:manage permission")
		}
		s, err := e.Broker.CreateStream(ctx, cmd.StreamID, cmd.Name)
		if err != nil {
			return nil, err
		}
		return reply.Stream(s), nil

	case wire.DeleteStream:
		s, err := e.Broker.GetStream(cmd.StreamID)
		if err != nil {
			return nil, err
		}
		if !sess.Permissions.CanManageStream(s.ID) {
			return nil, cos.NewError(cos.KindUnauthorized, "DeleteStream requires manage-stream permission")
		}
		if err := e.Broker.DeleteStream(ctx, cmd.StreamID); err != nil {
			return nil, err
		}
		e.Router.NoteStreamDeleted(s.ID)
		return reply.Empty, nil

	case wire.UpdateStream:
		s, err := e.Broker.GetStream(cmd.StreamID)
		if err != nil {
			return nil, err
		}
		if !sess.Permissions.CanManageStream(s.ID) {
			return nil, cos.NewError(cos.KindUnauthorized, "UpdateStream requires manage-stream permission")
		}
		s, err = e.Broker.UpdateStream(cmd.StreamID, cmd.Name)
		if err != nil {
			return nil, err
		}
		e.Router.NoteStreamRenamed(s.ID, s.Name)
		return reply.Stream(s), nil

	case wire.PurgeStream:
		s, err := e.Broker.GetStream(cmd.StreamID)
		if err != nil {
			return nil, err
		}
		if !sess.Permissions.CanManageStream(s.ID) {
			return nil, cos.NewError(cos.KindUnauthorized, "PurgeStream requires manage-stream permission")
		}
		return reply.Empty, e.Broker.PurgeStream(cmd.StreamID)

	case wire.GetStream:
		s, err := e.Broker.GetStream(cmd.StreamID)
		if err != nil {
			return nil, err
		}
		return reply.Stream(s), nil

	case wire.GetStreams:
		return reply.Streams(e.Broker.GetStreams()), nil

	//
	// Topics
	//

	case wire.CreateTopic:
		s, err := e.Broker.GetStream(cmd.StreamID)
		if err != nil {
			return nil, err
		}
		if !sess.Permissions.CanManageStream(s.ID) {
			return nil, cos.NewError(cos.KindUnauthorized, "CreateTopic requires manage-stream permission")
		}
		t, err := e.Broker.CreateTopic(cmd.StreamID, cmd.TopicID, cmd.Name, broker.TopicConfig{
			PartitionsCount:   cmd.PartitionsCount,
			MessageExpiry:     cmd.MessageExpiry,
			Compression:       cmd.Compression,
			MaxTopicSize:      cmd.MaxTopicSize,
			ReplicationFactor: cmd.ReplicationFactor,
		})
		if err != nil {
			return nil, err
		}
		return reply.Topic(t), nil

	case wire.DeleteTopic:
		if _, _, err := e.requireTopicManage(sess, cmd.StreamID, cmd.TopicID); err != nil {
			return nil, err
		}
		return reply.Empty, e.Broker.DeleteTopic(cmd.StreamID, cmd.TopicID)

	case wire.UpdateTopic:
		if _, _, err := e.requireTopicManage(sess, cmd.StreamID, cmd.TopicID); err != nil {
			return nil, err
		}
		t, err := e.Broker.UpdateTopic(cmd.StreamID, cmd.TopicID, cmd.Name)
		if err != nil {
			return nil, err
		}
		return reply.Topic(t), nil

	case wire.PurgeTopic:
		if _, _, err := e.requireTopicManage(sess, cmd.StreamID, cmd.TopicID); err != nil {
			return nil, err
		}
		return reply.Empty, e.Broker.PurgeTopic(cmd.StreamID, cmd.TopicID)

	case wire.GetTopic:
		t, err := e.Broker.GetTopic(cmd.StreamID, cmd.TopicID)
		if err != nil {
			return nil, err
		}
		return reply.Topic(t), nil

	case wire.GetTopics:
		topics, err := e.Broker.GetTopics(cmd.StreamID)
		if err != nil {
			return nil, err
		}
		return reply.Topics(topics), nil

	//
	// Partitions
	//

	case wire.CreatePartitions:
		if _, _, err := e.requireTopicManage(sess, cmd.StreamID, cmd.TopicID); err != nil {
			return nil, err
		}
		return reply.Empty, e.Broker.CreatePartitions(cmd.StreamID, cmd.TopicID, cmd.PartitionCount)

	case wire.DeletePartitions:
		if _, _, err := e.requireTopicManage(sess, cmd.StreamID, cmd.TopicID); err != nil {
			return nil, err
		}
		return reply.Empty, e.Broker.DeletePartitions(cmd.StreamID, cmd.TopicID, cmd.PartitionCount)

	//
	// Consumer groups
	//

	case wire.CreateConsumerGroup:
		if _, _, err := e.requireTopicManage(sess, cmd.StreamID, cmd.TopicID); err != nil {
			return nil, err
		}
		g, err := e.Broker.CreateConsumerGroup(cmd.StreamID, cmd.TopicID, cmd.GroupID, cmd.Name)
		if err != nil {
			return nil, err
		}
		return reply.ConsumerGroup(g), nil

	case wire.DeleteConsumerGroup:
		if _, _, err := e.requireTopicManage(sess, cmd.StreamID, cmd.TopicID); err != nil {
			return nil, err
		}
		return reply.Empty, e.Broker.DeleteConsumerGroup(cmd.StreamID, cmd.TopicID, cmd.GroupID)

	case wire.GetConsumerGroup:
		g, err := e.Broker.GetConsumerGroup(cmd.StreamID, cmd.TopicID, cmd.GroupID)
		if err != nil {
			return nil, err
		}
		return reply.ConsumerGroup(g), nil

	case wire.GetConsumerGroups:
		groups, err := e.Broker.GetConsumerGroups(cmd.StreamID, cmd.TopicID)
		if err != nil {
			return nil, err
		}
		return reply.ConsumerGroups(groups), nil

	case wire.JoinConsumerGroup:
		return reply.Empty, e.Broker.JoinConsumerGroup(cmd.StreamID, cmd.TopicID, cmd.GroupID, f.ClientID)

	case wire.LeaveConsumerGroup:
		return reply.Empty, e.Broker.LeaveConsumerGroup(cmd.StreamID, cmd.TopicID, cmd.GroupID, f.ClientID)

	//
	// Messages
	//

	case wire.SendMessages:
		if _, _, err := e.requireTopicPerm(sess, cmd.StreamID, cmd.TopicID, wire.PermSend); err != nil {
			return nil, err
		}
		if err := e.Broker.AppendMessages(ctx, cmd.StreamID, cmd.TopicID, cmd.Partitioning, cmd.Messages); err != nil {
			return nil, err
		}
		return reply.Empty, nil

	case wire.PollMessages:
		if _, _, err := e.requireTopicPerm(sess, cmd.StreamID, cmd.TopicID, wire.PermRead); err != nil {
			return nil, err
		}
		args := broker.PollArgs{PartitionID: cmd.PartitionID, Strategy: cmd.Strategy, Count: cmd.Count, AutoCommit: cmd.AutoCommit}
		msgs, err := e.Broker.PollMessages(ctx, cmd.Consumer, f.ClientID, cmd.StreamID, cmd.TopicID, args)
		if err != nil {
			return nil, err
		}
		return reply.Messages(msgs), nil

	case wire.GetConsumerOffset:
		if _, _, err := e.requireTopicPerm(sess, cmd.StreamID, cmd.TopicID, wire.PermRead); err != nil {
			return nil, err
		}
		offset, ok, err := e.Broker.GetConsumerOffset(ctx, cmd.Consumer, f.ClientID, cmd.StreamID, cmd.TopicID, cmd.PartitionID)
		if err != nil {
			return nil, err
		}
		return reply.ConsumerOffset(offset, ok), nil

	case wire.StoreConsumerOffset:
		if _, _, err := e.requireTopicPerm(sess, cmd.StreamID, cmd.TopicID, wire.PermRead); err != nil {
			return nil, err
		}
		return reply.Empty, e.Broker.StoreConsumerOffset(ctx, cmd.Consumer, f.ClientID, cmd.StreamID, cmd.TopicID, cmd.PartitionID, cmd.Offset)

	default:
		return nil, cos.NewError(cos.KindInvalidCommand, "unhandled command %s", f.Cmd.OpCode())
	}
}

// controlDispatch runs fn directly if this shard is the control shard,
// otherwise forwards cmd there and relays its reply (protocol §5: "the user
// and PAT tables live on the control shard; other shards query them via
// forwarded requests").
func (e *Executor) controlDispatch(cmd wire.Command, f Frame, fn func() ([]byte, error)) ([]byte, error) {
	if e.ID == ControlShard {
		debug.Assert(e.Broker.IsControl(), "control shard started without user/PAT tables")
		return fn()
	}
	r := e.forward(ControlShard, cmd, f.Session, f.ClientID)
	return r.Body, r.Err
}

// resolveLogin verifies credentials against the control shard's user/PAT
// tables, forwarding there if this executor is not itself the control shard.
func (e *Executor) resolveLogin(cmd wire.Command, f Frame) (userID uint32, perms wire.Permissions, err error) {
	if e.ID != ControlShard {
		r := e.forward(ControlShard, cmd, f.Session, f.ClientID)
		if r.Err != nil {
			return 0, wire.Permissions{}, r.Err
		}
		return decodeLoginIdentity(r.Body)
	}
	switch c := cmd.(type) {
	case wire.LoginUser:
		u, err := e.Broker.Users.VerifyLogin(c.Username, c.Password)
		if err != nil {
			return 0, wire.Permissions{}, err
		}
		return u.ID, u.Permissions, nil
	case wire.LoginWithPersonalAccessToken:
		uid, err := e.Broker.PATs.Verify(c.Token)
		if err != nil {
			return 0, wire.Permissions{}, err
		}
		u, err := e.Broker.Users.Get(wire.NumericIdentifier(uid))
		if err != nil {
			return 0, wire.Permissions{}, err
		}
		return u.ID, u.Permissions, nil
	default:
		return 0, wire.Permissions{}, cos.NewError(cos.KindInternal, "resolveLogin: unexpected command %T", cmd)
	}
}

// applyLogin mutates the live session object the listener registered for
// this client. Only the executor owning that client's connection ever calls
// this, so no lock is needed beyond the one session.Registry already holds
// while looking the session up.
func (e *Executor) applyLogin(clientID uint32, userID uint32, perms wire.Permissions) {
	if s, ok := e.Broker.Clients.Get(clientID); ok {
		s.Login(uint64(userID), perms)
	}
}

func (e *Executor) requireTopicManage(sess session.Session, streamID, topicID wire.Identifier) (*broker.Stream, *broker.Topic, error) {
	s, err := e.Broker.GetStream(streamID)
	if err != nil {
		return nil, nil, err
	}
	t, err := e.Broker.GetTopic(streamID, topicID)
	if err != nil {
		return nil, nil, err
	}
	if !sess.Permissions.CanManageStream(s.ID) {
		return nil, nil, cos.NewError(cos.KindUnauthorized, "operation requires manage-stream permission on stream %d", s.ID)
	}
	return s, t, nil
}

func (e *Executor) requireTopicPerm(sess session.Session, streamID, topicID wire.Identifier, perm wire.TopicPermissions) (*broker.Stream, *broker.Topic, error) {
	s, err := e.Broker.GetStream(streamID)
	if err != nil {
		return nil, nil, err
	}
	t, err := e.Broker.GetTopic(streamID, topicID)
	if err != nil {
		return nil, nil, err
	}
	var ok bool
	switch perm {
	case wire.PermSend:
		ok = sess.Permissions.CanSend(s.ID, t.ID)
	case wire.PermRead:
		ok = sess.Permissions.CanRead(s.ID, t.ID)
	}
	if !ok {
		return nil, nil, cos.NewError(cos.KindUnauthorized, "operation requires topic permission on stream %d topic %d", s.ID, t.ID)
	}
	return s, t, nil
}

func sessionClientRecord(s *session.Session) *broker.ClientRecord {
	return &broker.ClientRecord{ClientID: s.ClientID, UserID: s.UserID, HasUser: s.HasUser}
}

func decodeLoginIdentity(body []byte) (uint32, wire.Permissions, error) {
	if len(body) < 4 {
		return 0, wire.Permissions{}, cos.NewError(cos.KindInternal, "decodeLoginIdentity: short body")
	}
	userID := binary.LittleEndian.Uint32(body)
	perms, _, err := wire.DecodePermissions(body[4:])
	if err != nil {
		return 0, wire.Permissions{}, err
	}
	return userID, perms, nil
}
