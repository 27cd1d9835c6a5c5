package core

import (
	"sync"
	"testing"

	"github.com/classmeet/server/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	closed bool
}

func (f *fakeConn) TrySend(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func boolPtr(v bool) *bool { return &v }

func student(id, name string) domain.Identity {
	return domain.Identity{UserID: domain.UserID(id), DisplayName: name, Role: domain.RoleStudent}
}

func TestRoomMultiConnAggregation(t *testing.T) {
	r := newRoom("m1", "u-creator")

	id := student("u1", "alice")
	if _, err := r.Join("c1", id, &fakeConn{}, 0); err != nil {
		t.Fatalf("join c1: %v", err)
	}
	if _, err := r.Join("c2", id, &fakeConn{}, 0); err != nil {
		t.Fatalf("join c2: %v", err)
	}

	view := r.Snapshot()
	if view.Total != 1 {
		t.Fatalf("two connections of one user must be one participant, got %d", view.Total)
	}
	if len(view.Participants[0].ConnIDs) != 2 {
		t.Fatalf("expected 2 connection ids, got %#v", view.Participants[0].ConnIDs)
	}

	// Muting one tab keeps the participant audible.
	view, ok := r.SetStatus("c1", boolPtr(false), nil)
	if !ok {
		t.Fatal("SetStatus c1 failed")
	}
	if !view.Participants[0].AudioOn {
		t.Fatal("audio must stay on while one connection is unmuted")
	}

	// Muting the last tab flips the aggregate.
	view, _ = r.SetStatus("c2", boolPtr(false), nil)
	if view.Participants[0].AudioOn {
		t.Fatal("audio must be off once all connections are muted")
	}
	if !view.Participants[0].VideoOn {
		t.Fatal("video flag must be untouched by audio updates")
	}
}

func TestRoomLeaveLastConnRemovesParticipant(t *testing.T) {
	r := newRoom("m1", "u-creator")
	id := student("u1", "alice")
	if _, err := r.Join("c1", id, &fakeConn{}, 0); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := r.Join("c2", id, &fakeConn{}, 0); err != nil {
		t.Fatalf("join: %v", err)
	}

	res, ok := r.Leave("c1")
	if !ok {
		t.Fatal("leave c1 failed")
	}
	if res.ParticipantGone {
		t.Fatal("participant must survive while a connection remains")
	}

	res, _ = r.Leave("c2")
	if !res.ParticipantGone {
		t.Fatal("participant must go with its last connection")
	}
	if !res.Empty {
		t.Fatal("room must report empty")
	}
}

func TestRoomCreatorBecomesHostAndStaysPrivileged(t *testing.T) {
	r := newRoom("m1", "u1")

	res, err := r.Join("c1", student("u1", "alice"), &fakeConn{}, 0)
	if err != nil {
		t.Fatalf("creator join: %v", err)
	}
	if !res.HostAssigned {
		t.Fatal("creator's first connection must become host")
	}
	if res.Snapshot.HostConn != "c1" {
		t.Fatalf("host is %q, want c1", res.Snapshot.HostConn)
	}

	if _, err := r.Join("c2", student("u2", "bob"), &fakeConn{}, 0); err != nil {
		t.Fatalf("u2 join: %v", err)
	}
	if r.Snapshot().HostConn != "c1" {
		t.Fatal("host must not move on later joins")
	}

	// Creator keeps privilege from a non-host connection.
	if _, err := r.Join("c3", student("u1", "alice"), &fakeConn{}, 0); err != nil {
		t.Fatalf("creator second join: %v", err)
	}
	if !r.IsPrivileged("c3", student("u1", "alice")) {
		t.Fatal("creator must be privileged on any of their connections")
	}
	if r.IsPrivileged("c2", student("u2", "bob")) {
		t.Fatal("plain participant must not be privileged")
	}
	if !r.IsPrivileged("c1", student("u1", "alice")) {
		t.Fatal("host connection must be privileged")
	}
}

func TestRoomHostReelectionOnDeparture(t *testing.T) {
	r := newRoom("m1", "u1")
	if _, err := r.Join("c1", student("u1", "alice"), &fakeConn{}, 0); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := r.Join("c2", student("u2", "bob"), &fakeConn{}, 0); err != nil {
		t.Fatalf("join: %v", err)
	}

	res, _ := r.Leave("c1")
	if !res.HostChanged {
		t.Fatal("host departure must trigger re-election")
	}
	if res.NewHost != "c2" {
		t.Fatalf("new host is %q, want c2", res.NewHost)
	}
	if res.Snapshot.HostConn != "c2" {
		t.Fatal("snapshot must carry the new host")
	}

	// Last one out leaves host unset.
	res, _ = r.Leave("c2")
	if !res.HostChanged || res.NewHost != "" {
		t.Fatalf("empty room must clear host, got %q", res.NewHost)
	}
}

func TestRoomGuestKeysArePerConnection(t *testing.T) {
	r := newRoom("m1", "u1")
	guest := domain.Identity{DisplayName: "guest-1", Role: domain.RoleGuest}

	a, err := r.Join("c1", guest, &fakeConn{}, 0)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	b, err := r.Join("c2", guest, &fakeConn{}, 0)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if a.UserKey == b.UserKey {
		t.Fatalf("guest connections must not share a key: %q", a.UserKey)
	}
	if r.Snapshot().Total != 2 {
		t.Fatal("two guests must be two participants")
	}
}

func TestRoomParticipantCap(t *testing.T) {
	r := newRoom("m1", "u1")
	if _, err := r.Join("c1", student("u1", "alice"), &fakeConn{}, 1); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := r.Join("c2", student("u2", "bob"), &fakeConn{}, 1); err != ErrMeetingFull {
		t.Fatalf("expected ErrMeetingFull, got %v", err)
	}
	// A second connection of an existing participant does not count
	// against the cap.
	if _, err := r.Join("c3", student("u1", "alice"), &fakeConn{}, 1); err != nil {
		t.Fatalf("existing participant's extra connection rejected: %v", err)
	}
}

func TestRoomChatAllowed(t *testing.T) {
	r := newRoom("m1", "u1")
	if _, err := r.Join("c1", student("u1", "alice"), &fakeConn{}, 0); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := r.Join("c2", student("u2", "bob"), &fakeConn{}, 0); err != nil {
		t.Fatalf("join: %v", err)
	}

	if !r.ChatAllowed("c2", student("u2", "bob")) {
		t.Fatal("chat enabled by default")
	}
	if _, err := r.ApplyHostCommand("c1", student("u1", "alice"), CmdDisableChat, ""); err != nil {
		t.Fatalf("disable-chat: %v", err)
	}
	if r.ChatAllowed("c2", student("u2", "bob")) {
		t.Fatal("disabled chat must block plain participants")
	}
	if !r.ChatAllowed("c1", student("u1", "alice")) {
		t.Fatal("disabled chat must not block the host")
	}
}
