package roster_test

import (
	"errors"
	"testing"
	"time"

	"parley/internal/domain"
	"parley/internal/roster"
)

func member(id string) domain.Member {
	return domain.Member{UserID: domain.UserID(id), PublicKey: []byte(id + "-key")}
}

func room(id string, kind domain.RoomKind, members ...string) domain.Room {
	r := domain.Room{ID: domain.RoomID(id), Kind: kind}
	for _, m := range members {
		r.Members = append(r.Members, member(m))
	}
	return r
}

func recipientIDs(ms []domain.Member) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = string(m.UserID)
	}
	return out
}

func TestResolve_ExcludesSelf(t *testing.T) {
	c := roster.New("alice")
	c.LoadRoom(room("r1", domain.Direct, "alice", "bob"))
	if err := c.SetActive("r1"); err != nil {
		t.Fatal(err)
	}

	got, err := c.ResolveRecipients("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].UserID != "bob" {
		t.Fatalf("recipients = %v, want [bob]", recipientIDs(got))
	}
}

func TestResolve_UnloadedRoom_Fails(t *testing.T) {
	c := roster.New("alice")
	if _, err := c.ResolveRecipients("ghost"); !errors.Is(err, roster.ErrRoomNotLoaded) {
		t.Fatalf("got %v, want ErrRoomNotLoaded", err)
	}
}

func TestResolve_NonActiveRoom_Fails(t *testing.T) {
	c := roster.New("alice")
	c.LoadRoom(room("r1", domain.Direct, "alice", "bob"))
	c.LoadRoom(room("r2", domain.Direct, "alice", "carol"))
	if err := c.SetActive("r1"); err != nil {
		t.Fatal(err)
	}

	// r2 is Loaded but not active: resolving against it must fail so a
	// wrong room's member list can never be substituted.
	if _, err := c.ResolveRecipients("r2"); !errors.Is(err, roster.ErrRoomNotLoaded) {
		t.Fatalf("got %v, want ErrRoomNotLoaded", err)
	}
}

func TestMembershipEvent_UpdatesOwnRoomOnly(t *testing.T) {
	c := roster.New("alice")
	c.LoadRoom(room("active", domain.PrivateChannel, "alice", "bob"))
	c.LoadRoom(room("other", domain.PrivateChannel, "alice", "carol"))
	if err := c.SetActive("active"); err != nil {
		t.Fatal(err)
	}

	c.ApplyMembership(domain.MembershipEvent{
		RoomID:  "other",
		Members: []domain.Member{member("alice"), member("carol"), member("dave")},
	})

	got, err := c.ResolveRecipients("active")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].UserID != "bob" {
		t.Fatalf("active room changed by foreign event: %v", recipientIDs(got))
	}
}

func TestMembershipEvent_Removal(t *testing.T) {
	c := roster.New("alice")
	c.LoadRoom(room("r1", domain.PrivateChannel, "alice", "bob", "dave"))
	if err := c.SetActive("r1"); err != nil {
		t.Fatal(err)
	}

	c.ApplyMembership(domain.MembershipEvent{
		RoomID:  "r1",
		Members: []domain.Member{member("alice"), member("bob")},
	})

	got, err := c.ResolveRecipients("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].UserID != "bob" {
		t.Fatalf("removed member still resolves: %v", recipientIDs(got))
	}
}

func TestMembershipEvent_UnknownRoomDropped(t *testing.T) {
	c := roster.New("alice")
	c.ApplyMembership(domain.MembershipEvent{RoomID: "ghost", Members: []domain.Member{member("bob")}})
	if _, err := c.ResolveRecipients("ghost"); !errors.Is(err, roster.ErrRoomNotLoaded) {
		t.Fatalf("got %v, want ErrRoomNotLoaded", err)
	}
}

func TestRemoveRoom_ClearsActive(t *testing.T) {
	c := roster.New("alice")
	c.LoadRoom(room("r1", domain.Direct, "alice", "bob"))
	if err := c.SetActive("r1"); err != nil {
		t.Fatal(err)
	}

	c.RemoveRoom("r1")
	if c.Active() != "" {
		t.Fatalf("active = %q after removal, want empty", c.Active())
	}
	if _, err := c.ResolveRecipients("r1"); !errors.Is(err, roster.ErrRoomNotLoaded) {
		t.Fatalf("got %v, want ErrRoomNotLoaded", err)
	}
}

func TestInvalidate_BlocksResolutionUntilReload(t *testing.T) {
	c := roster.New("alice")
	r := room("r1", domain.Direct, "alice", "bob")
	c.LoadRoom(r)
	if err := c.SetActive("r1"); err != nil {
		t.Fatal(err)
	}

	c.Invalidate()
	if _, err := c.ResolveRecipients("r1"); !errors.Is(err, roster.ErrRoomNotLoaded) {
		t.Fatalf("stale room resolved: %v", err)
	}

	c.LoadRoom(r)
	if err := c.SetActive("r1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ResolveRecipients("r1"); err != nil {
		t.Fatalf("reloaded room must resolve: %v", err)
	}
}

func TestClassify(t *testing.T) {
	c := roster.New("alice")
	c.LoadRoom(room("pub", domain.PublicChannel, "alice"))
	c.LoadRoom(room("priv", domain.PrivateChannel, "alice"))
	c.LoadRoom(room("dm", domain.Direct, "alice", "bob"))

	cases := []struct {
		id   domain.RoomID
		want roster.Visibility
	}{
		{"pub", roster.Public},
		{"priv", roster.Private},
		{"dm", roster.Private},
	}
	for _, tc := range cases {
		got, err := c.Classify(tc.id)
		if err != nil {
			t.Fatalf("Classify(%s): %v", tc.id, err)
		}
		if got != tc.want {
			t.Fatalf("Classify(%s) = %v, want %v", tc.id, got, tc.want)
		}
	}
	if _, err := c.Classify("ghost"); !errors.Is(err, roster.ErrRoomNotLoaded) {
		t.Fatalf("got %v, want ErrRoomNotLoaded", err)
	}
}

func TestAtomically_QueuesMembershipUpdates(t *testing.T) {
	c := roster.New("alice")
	c.LoadRoom(room("r1", domain.PrivateChannel, "alice", "bob", "dave"))
	if err := c.SetActive("r1"); err != nil {
		t.Fatal(err)
	}

	applied := make(chan struct{})
	err := c.Atomically("r1", func(_ domain.Room, recipients []domain.Member) error {
		// A membership update lands mid-send. It must not apply until
		// this callback (standing in for the wrap loop) returns.
		go func() {
			c.ApplyMembership(domain.MembershipEvent{
				RoomID:  "r1",
				Members: []domain.Member{member("alice"), member("bob")},
			})
			close(applied)
		}()

		select {
		case <-applied:
			t.Error("membership update applied inside the critical section")
		case <-time.After(50 * time.Millisecond):
		}

		if len(recipients) != 2 {
			t.Errorf("recipients = %v, want [bob dave]", recipientIDs(recipients))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	<-applied
	got, err := c.ResolveRecipients("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].UserID != "bob" {
		t.Fatalf("queued update not applied afterwards: %v", recipientIDs(got))
	}
}
