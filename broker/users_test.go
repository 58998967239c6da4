/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package broker

import (
	"testing"
	"time"

	"github.com/flowmq/flowmq/cmn/cos"
	"github.com/flowmq/flowmq/wire"
)

func TestUserLifecycle(t *testing.T) {
	ut := NewUserTable()
	u, err := ut.Create("alice", "pw", wire.UserActive, wire.Permissions{})
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != 1 {
		t.Fatalf("first user id = %d", u.ID)
	}
	if _, err := ut.Create("alice", "pw2", wire.UserActive, wire.Permissions{}); !cos.IsKind(err, cos.KindAlreadyExists) {
		t.Fatalf("duplicate username: %v", err)
	}

	if _, err := ut.VerifyLogin("alice", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := ut.VerifyLogin("alice", "wrong"); !cos.IsKind(err, cos.KindUnauthenticated) {
		t.Fatalf("bad password: %v", err)
	}
	if _, err := ut.VerifyLogin("nobody", "pw"); !cos.IsKind(err, cos.KindUnauthenticated) {
		t.Fatalf("unknown user: %v", err)
	}

	if err := ut.ChangePassword(wire.NumericIdentifier(1), "wrong", "new"); !cos.IsKind(err, cos.KindUnauthorized) {
		t.Fatalf("change with wrong current: %v", err)
	}
	if err := ut.ChangePassword(wire.NumericIdentifier(1), "pw", "new"); err != nil {
		t.Fatal(err)
	}
	if _, err := ut.VerifyLogin("alice", "new"); err != nil {
		t.Fatalf("login after rotate: %v", err)
	}

	inactive := wire.UserInactive
	if _, err := ut.Update(wire.MustStringIdentifier("alice"), nil, &inactive); err != nil {
		t.Fatal(err)
	}
	if _, err := ut.VerifyLogin("alice", "new"); !cos.IsKind(err, cos.KindUnauthenticated) {
		t.Fatalf("inactive user logged in: %v", err)
	}

	if err := ut.Delete(wire.NumericIdentifier(1)); err != nil {
		t.Fatal(err)
	}
	if err := ut.Delete(wire.NumericIdentifier(1)); !cos.IsKind(err, cos.KindNotFound) {
		t.Fatalf("double delete: %v", err)
	}
}

func TestUserRenameCollision(t *testing.T) {
	ut := NewUserTable()
	if _, err := ut.Create("a", "pw", wire.UserActive, wire.Permissions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := ut.Create("b", "pw", wire.UserActive, wire.Permissions{}); err != nil {
		t.Fatal(err)
	}
	name := "a"
	if _, err := ut.Update(wire.NumericIdentifier(2), &name, nil); !cos.IsKind(err, cos.KindAlreadyExists) {
		t.Fatalf("rename onto taken name: %v", err)
	}
}

func TestPATLifecycle(t *testing.T) {
	pt := NewPATTable([]byte("test-signing-key"))
	raw, err := pt.Create(7, "ci", 0)
	if err != nil {
		t.Fatal(err)
	}
	if raw == "" {
		t.Fatal("empty raw token")
	}
	if _, err := pt.Create(7, "ci", 0); !cos.IsKind(err, cos.KindAlreadyExists) {
		t.Fatalf("duplicate name: %v", err)
	}

	uid, err := pt.Verify(raw)
	if err != nil || uid != 7 {
		t.Fatalf("verify: uid=%d err=%v", uid, err)
	}
	if _, err := pt.Verify(raw + "x"); !cos.IsKind(err, cos.KindUnauthenticated) {
		t.Fatalf("tampered token: %v", err)
	}

	// revocation by name invalidates the still-signed token immediately
	if err := pt.Delete(7, "ci"); err != nil {
		t.Fatal(err)
	}
	if _, err := pt.Verify(raw); !cos.IsKind(err, cos.KindUnauthenticated) {
		t.Fatalf("revoked token: %v", err)
	}
	if err := pt.Delete(7, "ci"); !cos.IsKind(err, cos.KindNotFound) {
		t.Fatalf("double delete: %v", err)
	}
}

func TestPATExpiry(t *testing.T) {
	pt := NewPATTable([]byte("test-signing-key"))
	if _, err := pt.Create(1, "short", 3600); err != nil {
		t.Fatal(err)
	}
	toks := pt.List(1)
	if len(toks) != 1 || toks[0].ExpiresAt == nil {
		t.Fatalf("token list: %+v", toks)
	}
	if toks[0].Expired(time.Now()) {
		t.Fatal("fresh token already expired")
	}
	if !toks[0].Expired(time.Now().Add(2 * time.Hour)) {
		t.Fatal("token did not expire")
	}
}
