/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package server_test

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/flowmq/flowmq/broker"
	"github.com/flowmq/flowmq/cmn"
	"github.com/flowmq/flowmq/cmn/cos"
	"github.com/flowmq/flowmq/metrics"
	"github.com/flowmq/flowmq/server"
	"github.com/flowmq/flowmq/session"
	"github.com/flowmq/flowmq/shard"
	"github.com/flowmq/flowmq/storage"
	"github.com/flowmq/flowmq/wire"
)

// startBroker wires the daemon the way cmd/flowmqd does, on an ephemeral
// port, and returns the dial address.
func startBroker(t *testing.T, numShards int) string {
	t.Helper()
	cfg := cmn.DefaultConfig()
	cfg.Net.Address = "127.0.0.1:0"
	cfg.Storage.Path = ":memory:"

	st, err := storage.OpenBunt(cfg.Storage.Path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	m := metrics.New()
	clients := session.NewRegistry()
	router := shard.NewRouter(numShards, clients)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	for i := 0; i < numShards; i++ {
		b := broker.New(i, st, m, clients)
		if i == shard.ControlShard {
			b.MakeControl([]byte(cfg.Auth.SigningKey))
			rootPerms := wire.Permissions{
				Global: wire.PermManageStreams | wire.PermManageUsers | wire.PermManagePAT | wire.PermReadStats,
				Streams: map[uint32]wire.StreamPermissions{
					0: {ManageStream: true, Topics: map[uint32]wire.TopicPermissions{
						0: wire.PermSend | wire.PermRead | wire.PermManageTopic,
					}},
				},
			}
			if _, err := b.Users.Create(cfg.Auth.RootUsername, cfg.Auth.RootPassword, wire.UserActive, rootPerms); err != nil {
				t.Fatal(err)
			}
		}
		go shard.NewExecutor(i, b, router).Run(ctx)
	}

	srv := server.New(cfg, router, clients)
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}
	go srv.Serve(ctx)
	return srv.Addr().String()
}

type testClient struct {
	t    *testing.T
	conn net.Conn
}

func dialBroker(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn}
}

// roundtrip sends one command and returns (status, body).
func (c *testClient) roundtrip(cmd wire.Command) (uint32, []byte) {
	c.t.Helper()
	c.conn.SetDeadline(time.Now().Add(5 * time.Second))
	if err := wire.WriteRequest(c.conn, cmd.OpCode(), cmd.Encode()); err != nil {
		c.t.Fatalf("%s: write: %v", cmd.OpCode(), err)
	}
	status, body, err := wire.ReadReply(c.conn)
	if err != nil {
		c.t.Fatalf("%s: read reply: %v", cmd.OpCode(), err)
	}
	return status, body
}

func (c *testClient) mustOK(cmd wire.Command) []byte {
	c.t.Helper()
	status, body := c.roundtrip(cmd)
	if status != 0 {
		c.t.Fatalf("%s: status %d (%s)", cmd.OpCode(), status, cos.Kind(status))
	}
	return body
}

func TestEndToEnd(t *testing.T) {
	addr := startBroker(t, 2)
	c := dialBroker(t, addr)

	// liveness before auth
	if body := c.mustOK(wire.Ping{}); len(body) != 0 {
		t.Fatalf("ping body: % x", body)
	}
	// anything else before auth is rejected, connection stays open
	if status, _ := c.roundtrip(wire.CreateStream{Name: "early"}); status != cos.KindUnauthenticated.Code() {
		t.Fatalf("pre-auth create: status %d", status)
	}

	c.mustOK(wire.LoginUser{Username: "root", Password: "flowmq"})

	body := c.mustOK(wire.CreateStream{Name: "orders"})
	streamID := binary.LittleEndian.Uint32(body)
	if streamID != 1 {
		t.Fatalf("stream id = %d", streamID)
	}

	sid := wire.NumericIdentifier(streamID)
	c.mustOK(wire.CreateTopic{
		StreamID: sid, Name: "events", PartitionsCount: 2,
		Compression: wire.CompressionNone, ReplicationFactor: 1,
	})

	// replication factor >1 is rejected on a single node
	if status, _ := c.roundtrip(wire.CreateTopic{
		StreamID: sid, Name: "bad", PartitionsCount: 1,
		Compression: wire.CompressionNone, ReplicationFactor: 2,
	}); status != cos.KindInvalidConfiguration.Code() {
		t.Fatalf("replicated topic: status %d", status)
	}

	// Balanced rotates per batch, so four single-message batches spread
	// round-robin over the two partitions.
	tid := wire.NumericIdentifier(1)
	for i := 0; i < 4; i++ {
		var m wire.AppendableMessage
		m.ID[0], m.ID[1] = 0xaa, byte(i+1)
		m.Payload = []byte{byte(i)}
		c.mustOK(wire.SendMessages{
			StreamID: sid, TopicID: tid,
			Partitioning: wire.Partitioning{Kind: wire.PartitioningBalanced},
			Messages:     []wire.AppendableMessage{m},
		})
	}

	// balanced across 2 partitions: partition 1 holds messages 0 and 2
	body = c.mustOK(wire.PollMessages{
		Consumer: wire.Consumer{Kind: wire.ConsumerDirect}, StreamID: sid, TopicID: tid,
		PartitionID: 1, Strategy: wire.PollingStrategy{Kind: wire.PollFirst}, Count: 10,
	})
	if got := binary.LittleEndian.Uint32(body); got != 2 {
		t.Fatalf("polled %d messages from partition 1, want 2", got)
	}

	// the stream listing is gathered across every shard
	body = c.mustOK(wire.GetStreams{})
	if got := binary.LittleEndian.Uint32(body); got != 1 {
		t.Fatalf("GetStreams count = %d", got)
	}

	// a malformed payload reports InvalidCommand and keeps the connection
	if err := wire.WriteRequest(c.conn, wire.OpGetClients, []byte{0x01}); err != nil {
		t.Fatal(err)
	}
	status, _, err := wire.ReadReply(c.conn)
	if err != nil {
		t.Fatal(err)
	}
	if status != cos.KindInvalidCommand.Code() {
		t.Fatalf("malformed payload: status %d", status)
	}
	c.mustOK(wire.Ping{})
}

func TestEndToEndSecondClientSeesState(t *testing.T) {
	addr := startBroker(t, 2)

	c1 := dialBroker(t, addr)
	c1.mustOK(wire.LoginUser{Username: "root", Password: "flowmq"})
	c1.mustOK(wire.CreateStream{Name: "shared"})

	c2 := dialBroker(t, addr)
	c2.mustOK(wire.LoginUser{Username: "root", Password: "flowmq"})
	body := c2.mustOK(wire.GetStream{StreamID: wire.MustStringIdentifier("shared")})
	if got := binary.LittleEndian.Uint32(body); got != 1 {
		t.Fatalf("stream id via second client = %d", got)
	}

	// each connection authenticates independently
	c3 := dialBroker(t, addr)
	if status, _ := c3.roundtrip(wire.GetStreams{}); status != cos.KindUnauthenticated.Code() {
		t.Fatalf("unauthenticated third client: status %d", status)
	}
}

func TestConsumerGroupOverWire(t *testing.T) {
	addr := startBroker(t, 1)
	c := dialBroker(t, addr)
	c.mustOK(wire.LoginUser{Username: "root", Password: "flowmq"})
	c.mustOK(wire.CreateStream{Name: "s"})
	sid, tid := wire.NumericIdentifier(1), wire.NumericIdentifier(1)
	c.mustOK(wire.CreateTopic{StreamID: sid, Name: "t", PartitionsCount: 5, Compression: wire.CompressionNone, ReplicationFactor: 1})
	c.mustOK(wire.CreateConsumerGroup{StreamID: sid, TopicID: tid, Name: "readers"})
	gid := wire.NumericIdentifier(1)
	c.mustOK(wire.JoinConsumerGroup{StreamID: sid, TopicID: tid, GroupID: gid})

	body := c.mustOK(wire.GetConsumerGroup{StreamID: sid, TopicID: tid, GroupID: gid})
	// header: id, name, member count, assigned-partition count
	if got := binary.LittleEndian.Uint32(body); got != 1 {
		t.Fatalf("group id = %d", got)
	}
	off := 4 + 1 + len("readers")
	if members := binary.LittleEndian.Uint32(body[off:]); members != 1 {
		t.Fatalf("member count = %d", members)
	}
	if assigned := binary.LittleEndian.Uint32(body[off+4:]); assigned != 5 {
		t.Fatalf("assigned partitions = %d", assigned)
	}

	c.mustOK(wire.LeaveConsumerGroup{StreamID: sid, TopicID: tid, GroupID: gid})
	body = c.mustOK(wire.GetConsumerGroup{StreamID: sid, TopicID: tid, GroupID: gid})
	if members := binary.LittleEndian.Uint32(body[off:]); members != 0 {
		t.Fatalf("member count after leave = %d", members)
	}
}
