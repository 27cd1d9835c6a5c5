package core

import (
	"testing"

	"github.com/classmeet/server/internal/domain"
)

func TestRegistryJoinLeaveRoundTrip(t *testing.T) {
	g := NewRegistry(0)

	if g.RoomCount() != 0 {
		t.Fatal("fresh registry must be empty")
	}

	res, _, err := g.Join("m1", "u1", "c1", student("u1", "alice"), &fakeConn{})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if res.UserKey != "u1" {
		t.Fatalf("authenticated user key is %q, want u1", res.UserKey)
	}
	if g.RoomCount() != 1 || g.ConnCount() != 1 {
		t.Fatalf("rooms=%d conns=%d after join", g.RoomCount(), g.ConnCount())
	}

	if _, _, ok := g.Leave("c1"); !ok {
		t.Fatal("leave failed")
	}
	if g.RoomCount() != 0 || g.ConnCount() != 0 {
		t.Fatalf("registry must return to pre-join state, rooms=%d conns=%d", g.RoomCount(), g.ConnCount())
	}
}

func TestRegistryRoomSurvivesPartialLeave(t *testing.T) {
	g := NewRegistry(0)
	if _, _, err := g.Join("m1", "u1", "c1", student("u1", "alice"), &fakeConn{}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, _, err := g.Join("m1", "u1", "c2", student("u2", "bob"), &fakeConn{}); err != nil {
		t.Fatalf("join: %v", err)
	}

	g.Leave("c1")
	if g.RoomCount() != 1 {
		t.Fatal("room must survive while participants remain")
	}
	g.Leave("c2")
	if g.RoomCount() != 0 {
		t.Fatal("room must collapse with its last participant")
	}
}

func TestRegistryRejectedJoinLeavesNoState(t *testing.T) {
	g := NewRegistry(0)
	if _, _, err := g.Join("m1", "u1", "c1", student("u1", "alice"), &fakeConn{}); err != nil {
		t.Fatalf("join: %v", err)
	}
	room, _ := g.Room("m1")
	if _, err := room.ApplyHostCommand("c1", student("u1", "alice"), CmdBanUser, "u2"); err != nil {
		t.Fatalf("ban: %v", err)
	}

	// Repeated attempts stay rejected until unban.
	for i := 0; i < 3; i++ {
		if _, _, err := g.Join("m1", "u1", "c2", student("u2", "bob"), &fakeConn{}); err != ErrForbidden {
			t.Fatalf("attempt %d: expected ErrForbidden, got %v", i, err)
		}
	}
	if g.ConnCount() != 1 {
		t.Fatal("rejected join must not index a connection")
	}
	if room.Snapshot().Total != 1 {
		t.Fatal("rejected join must not create a participant")
	}

	if _, err := room.ApplyHostCommand("c1", student("u1", "alice"), CmdUnbanUser, "u2"); err != nil {
		t.Fatalf("unban: %v", err)
	}
	if _, _, err := g.Join("m1", "u1", "c2", student("u2", "bob"), &fakeConn{}); err != nil {
		t.Fatalf("join after unban: %v", err)
	}
}

func TestRegistryDestroyHookFires(t *testing.T) {
	g := NewRegistry(0)
	var destroyed []domain.MeetingID
	g.OnRoomDestroyed(func(id domain.MeetingID) { destroyed = append(destroyed, id) })

	g.Join("m1", "u1", "c1", student("u1", "alice"), &fakeConn{})
	g.Leave("c1")

	if len(destroyed) != 1 || destroyed[0] != "m1" {
		t.Fatalf("destroy hook got %#v", destroyed)
	}
}

func TestRegistryCreatorSetOnce(t *testing.T) {
	g := NewRegistry(0)
	// First join races in without a creator (lookup supplied none).
	g.Join("m1", "", "c1", domain.Identity{DisplayName: "guest-1", Role: domain.RoleGuest}, &fakeConn{})
	room, _ := g.Room("m1")
	if room.CreatorID() != "" {
		t.Fatalf("creator is %q, want unset", room.CreatorID())
	}

	g.Join("m1", "u1", "c2", student("u1", "alice"), &fakeConn{})
	if room.CreatorID() != "u1" {
		t.Fatal("creator must be set on first join that supplies it")
	}

	g.Join("m1", "u9", "c3", student("u9", "eve"), &fakeConn{})
	if room.CreatorID() != "u1" {
		t.Fatal("creator is immutable once set")
	}
}

func TestRegistryDropConns(t *testing.T) {
	g := NewRegistry(0)
	g.Join("m1", "u1", "c1", student("u1", "alice"), &fakeConn{})
	g.Join("m1", "u1", "c2", student("u2", "bob"), &fakeConn{})

	room, _ := g.Room("m1")
	res, err := room.ApplyHostCommand("c1", student("u1", "alice"), CmdKick, "u2")
	if err != nil {
		t.Fatalf("kick: %v", err)
	}
	g.DropConns("m1", res.RemovedConns)

	if g.ConnCount() != 1 {
		t.Fatalf("kicked connection still indexed, conns=%d", g.ConnCount())
	}
	if _, _, ok := g.RoomOf("c2"); ok {
		t.Fatal("kicked connection must not resolve to a room")
	}
}
