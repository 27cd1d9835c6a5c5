package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/classmeet/server/internal/chat"
	"github.com/classmeet/server/internal/core"
	"github.com/classmeet/server/internal/domain"
	"github.com/classmeet/server/internal/storage"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func student(id, name string) domain.Identity {
	return domain.Identity{UserID: domain.UserID(id), DisplayName: name, Role: domain.RoleStudent}
}

func newTestOrch(t *testing.T) (*Orchestrator, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory()
	mem.AddMeeting(domain.Meeting{ID: "m1", CreatorID: "u1"})
	reg := core.NewRegistry(0)
	svc := chat.NewService(reg, mem, chat.NewRateLimiter(5, 5*time.Second), 2000)
	return NewOrchestrator(reg, svc, mem, mem, 100), mem
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestJoinUnknownMeeting(t *testing.T) {
	o, _ := newTestOrch(t)
	_, err := o.Join(context.Background(), "m-ghost", "c1", student("u1", "alice"), &fakeConn{}, 0)
	if err != core.ErrMeetingNotFound {
		t.Fatalf("expected ErrMeetingNotFound, got %v", err)
	}
	if o.Registry.RoomCount() != 0 {
		t.Fatal("rejected join must not create a room")
	}
}

func TestJoinRepliesWithHistory(t *testing.T) {
	o, mem := newTestOrch(t)
	mem.AppendMessage(context.Background(), domain.ChatMessage{
		ID: "old-1", MeetingID: "m1", SenderName: "alice", Text: "earlier", SentAt: time.Now().UTC(),
	})

	out, err := o.Join(context.Background(), "m1", "c1", student("u1", "alice"), &fakeConn{}, 0)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !out.Result.HostAssigned {
		t.Fatal("creator must be assigned host")
	}
	if len(out.History) != 1 || out.History[0].ID != "old-1" {
		t.Fatalf("history replay got %#v", out.History)
	}
}

// Scenario from the meeting flow: creator joins and becomes host, a
// participant joins, mute-everyone silences both, creator's drop hands
// the host role to the survivor.
func TestMeetingModerationLifecycle(t *testing.T) {
	o, mem := newTestOrch(t)

	c1 := &fakeConn{}
	out, err := o.Join(context.Background(), "m1", "c1", student("u1", "alice"), c1, 0)
	if err != nil {
		t.Fatalf("creator join: %v", err)
	}
	if !out.Result.HostAssigned {
		t.Fatal("creator must become host")
	}

	c2 := &fakeConn{}
	if _, err := o.Join(context.Background(), "m1", "c2", student("u2", "bob"), c2, 0); err != nil {
		t.Fatalf("u2 join: %v", err)
	}

	res, err := o.HostCommand("m1", "c1", student("u1", "alice"), core.CmdMuteEveryone, "")
	if err != nil {
		t.Fatalf("mute-everyone: %v", err)
	}
	for _, p := range res.Snapshot.Participants {
		if p.AudioOn {
			t.Fatalf("participant %s still audible after mute-everyone", p.UserKey)
		}
	}
	waitFor(t, func() bool {
		entries := mem.AuditEntries()
		return len(entries) == 1 && entries[0].Action == core.CmdMuteEveryone
	}, "audit entry for mute-everyone")

	// Transport drop of the host.
	leaveRes, _, ok := o.Leave("c1")
	if !ok {
		t.Fatal("leave failed")
	}
	if !leaveRes.HostChanged || leaveRes.NewHost != "c2" {
		t.Fatalf("host must pass to c2, got %#v", leaveRes)
	}
}

func TestHostCommandBanThenRejoinForbidden(t *testing.T) {
	o, _ := newTestOrch(t)
	o.Join(context.Background(), "m1", "c1", student("u1", "alice"), &fakeConn{}, 0)
	o.Join(context.Background(), "m1", "c2", student("u2", "bob"), &fakeConn{}, 0)

	res, err := o.HostCommand("m1", "c1", student("u1", "alice"), core.CmdBanUser, "u2")
	if err != nil {
		t.Fatalf("ban-user: %v", err)
	}
	if len(res.RemovedConns) != 1 {
		t.Fatalf("removed %v, want one connection", res.RemovedConns)
	}
	if o.Registry.ConnCount() != 1 {
		t.Fatal("banned connection must leave the index")
	}

	_, err = o.Join(context.Background(), "m1", "c3", student("u2", "bob"), &fakeConn{}, 0)
	if err != core.ErrForbidden {
		t.Fatalf("banned rejoin: expected ErrForbidden, got %v", err)
	}
}

func TestHostCommandUnknownMeeting(t *testing.T) {
	o, _ := newTestOrch(t)
	if _, err := o.HostCommand("m-ghost", "c1", student("u1", "alice"), core.CmdMuteEveryone, ""); err != core.ErrMeetingNotFound {
		t.Fatalf("expected ErrMeetingNotFound, got %v", err)
	}
}

func TestRelayResolution(t *testing.T) {
	o, mem := newTestOrch(t)
	mem.AddMeeting(domain.Meeting{ID: "m2", CreatorID: "u3"})

	c1 := &fakeConn{}
	c2 := &fakeConn{}
	o.Join(context.Background(), "m1", "c1", student("u1", "alice"), c1, 0)
	o.Join(context.Background(), "m1", "c2", student("u2", "bob"), c2, 0)
	o.Join(context.Background(), "m2", "c3", student("u3", "eve"), &fakeConn{}, 0)

	sig, identity, ok := o.Relay("c1", "c2")
	if !ok {
		t.Fatal("relay within a room must resolve")
	}
	if sig != core.SignalConn(c2) {
		t.Fatal("relay must resolve the target endpoint")
	}
	if identity.UserID != "u1" {
		t.Fatalf("relay must annotate the sender, got %q", identity.UserID)
	}

	if _, _, ok := o.Relay("c1", "c-ghost"); ok {
		t.Fatal("unknown target must drop silently")
	}
	if _, _, ok := o.Relay("c1", "c3"); ok {
		t.Fatal("cross-room relay must drop")
	}
}

func TestStatusUpdate(t *testing.T) {
	o, _ := newTestOrch(t)
	o.Join(context.Background(), "m1", "c1", student("u1", "alice"), &fakeConn{}, 0)

	off := false
	view, _, ok := o.Status("c1", &off, nil)
	if !ok {
		t.Fatal("status update failed")
	}
	if view.Participants[0].AudioOn {
		t.Fatal("audio must be off after status update")
	}

	if _, _, ok := o.Status("c-ghost", &off, nil); ok {
		t.Fatal("status for unknown connection must fail")
	}
}
