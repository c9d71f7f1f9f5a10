package envelope_test

import (
	"bytes"
	"context"
	"crypto/rsa"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"parley/internal/crypto"
	"parley/internal/domain"
	"parley/internal/roster"
	"parley/internal/services/envelope"
)

// fakeTransport records delivered envelopes.
type fakeTransport struct {
	delivered []domain.Envelope
}

func (f *fakeTransport) Deliver(_ context.Context, _ string, env domain.Envelope) error {
	f.delivered = append(f.delivered, env)
	return nil
}

func (f *fakeTransport) Rooms(context.Context, string) ([]domain.Room, error) { return nil, nil }
func (f *fakeTransport) DirectRoom(context.Context, string, domain.UserID) (domain.Room, error) {
	return domain.Room{}, nil
}
func (f *fakeTransport) Subscribe(context.Context, string) (<-chan domain.Event, error) {
	return nil, nil
}

type fixture struct {
	transport *fakeTransport
	cache     *roster.Cache
	serverKey *rsa.PrivateKey
	privs     map[domain.UserID]*rsa.PrivateKey
	members   map[domain.UserID]domain.Member
}

func newFixture(t *testing.T, self domain.UserID, peers ...domain.UserID) (*fixture, *envelope.Service) {
	t.Helper()
	f := &fixture{
		transport: &fakeTransport{},
		cache:     roster.New(self),
		privs:     make(map[domain.UserID]*rsa.PrivateKey),
		members:   make(map[domain.UserID]domain.Member),
	}

	var err error
	f.serverKey, err = crypto.GenerateRSA()
	if err != nil {
		t.Fatalf("server key: %v", err)
	}

	for _, u := range append([]domain.UserID{self}, peers...) {
		f.members[u] = f.addIdentity(t, u)
	}

	svc := envelope.New(self, "token", &f.serverKey.PublicKey,
		f.privs[self], f.cache, f.transport, zerolog.Nop())
	return f, svc
}

func (f *fixture) addIdentity(t *testing.T, user domain.UserID) domain.Member {
	t.Helper()
	priv, err := crypto.GenerateRSA()
	if err != nil {
		t.Fatalf("GenerateRSA(%s): %v", user, err)
	}
	pubDER, err := crypto.EncodePublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	f.privs[user] = priv
	return domain.Member{UserID: user, PublicKey: pubDER}
}

func (f *fixture) loadRoom(t *testing.T, id domain.RoomID, kind domain.RoomKind, users ...domain.UserID) {
	t.Helper()
	room := domain.Room{ID: id, Kind: kind}
	for _, u := range users {
		room.Members = append(room.Members, f.members[u])
	}
	f.cache.LoadRoom(room)
	if err := f.cache.SetActive(id); err != nil {
		t.Fatalf("SetActive(%s): %v", id, err)
	}
}

// receiver builds a second envelope service able to decrypt as user.
func (f *fixture) receiver(user domain.UserID) *envelope.Service {
	return envelope.New(user, "token", &f.serverKey.PublicKey,
		f.privs[user], roster.New(user), &fakeTransport{}, zerolog.Nop())
}

func TestSend_PrivateFanOut(t *testing.T) {
	f, svc := newFixture(t, "alice", "bob", "carol")
	f.loadRoom(t, "r1", domain.PrivateChannel, "alice", "bob", "carol")

	env, err := svc.SendMessage(context.Background(), "r1", []byte("team update"))
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(f.transport.delivered) != 1 {
		t.Fatalf("delivered %d envelopes, want 1", len(f.transport.delivered))
	}

	// Exactly one wrapped key per member other than the sender.
	if len(env.WrappedKeys) != 2 {
		t.Fatalf("wrapped keys = %d, want 2", len(env.WrappedKeys))
	}
	seen := map[domain.UserID]bool{}
	for _, wk := range env.WrappedKeys {
		seen[wk.RecipientID] = true
	}
	if seen["alice"] || !seen["bob"] || !seen["carol"] {
		t.Fatalf("recipients = %v, want bob and carol only", seen)
	}

	// Both recipients recover the identical plaintext with only their keys.
	for _, user := range []domain.UserID{"bob", "carol"} {
		res, err := f.receiver(user).ReceiveMessage(env)
		if err != nil {
			t.Fatalf("receive as %s: %v", user, err)
		}
		if res.Discarded || !bytes.Equal(res.Plaintext, []byte("team update")) {
			t.Fatalf("receive as %s: got %+v", user, res)
		}
	}
}

func TestReceive_CannotUseAnothersEntry(t *testing.T) {
	f, svc := newFixture(t, "alice", "bob", "carol")
	f.loadRoom(t, "r1", domain.PrivateChannel, "alice", "bob", "carol")

	env, err := svc.SendMessage(context.Background(), "r1", []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}

	// Relabel carol's wrapped key as bob's: bob's private key must not
	// open it, and the failure must look like non-addressing.
	swapped := env
	swapped.WrappedKeys = nil
	for _, wk := range env.WrappedKeys {
		if wk.RecipientID == "carol" {
			swapped.WrappedKeys = append(swapped.WrappedKeys,
				domain.WrappedKey{RecipientID: "bob", Key: wk.Key})
		}
	}

	res, err := f.receiver("bob").ReceiveMessage(swapped)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !res.Discarded || res.Reason != envelope.NotRecipient {
		t.Fatalf("got %+v, want NotRecipient discard", res)
	}
}

func TestSend_MembershipExclusion(t *testing.T) {
	f, svc := newFixture(t, "alice", "bob", "dave")
	f.loadRoom(t, "r1", domain.PrivateChannel, "alice", "bob", "dave")

	// Dave is removed before the next send.
	f.cache.ApplyMembership(domain.MembershipEvent{
		RoomID:  "r1",
		Members: []domain.Member{f.members["alice"], f.members["bob"]},
	})

	env, err := svc.SendMessage(context.Background(), "r1", []byte("dave must not see this"))
	if err != nil {
		t.Fatal(err)
	}
	for _, wk := range env.WrappedKeys {
		if wk.RecipientID == "dave" {
			t.Fatal("envelope still carries a key for the removed member")
		}
	}
	if len(env.WrappedKeys) != 1 {
		t.Fatalf("wrapped keys = %d, want 1", len(env.WrappedKeys))
	}

	res, err := f.receiver("dave").ReceiveMessage(env)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Discarded {
		t.Fatal("removed member decrypted the message")
	}
}

func TestSend_PublicPath(t *testing.T) {
	f, svc := newFixture(t, "alice", "bob")
	f.loadRoom(t, "lobby", domain.PublicChannel, "alice", "bob")

	env, err := svc.SendMessage(context.Background(), "lobby", []byte("hi all"))
	if err != nil {
		t.Fatal(err)
	}
	if env.Private() {
		t.Fatal("public envelope must not carry wrapped keys")
	}

	// Only the server key opens the content.
	pt, err := crypto.UnwrapFromServer(env.Content, f.serverKey)
	if err != nil {
		t.Fatalf("server cannot decrypt: %v", err)
	}
	if !bytes.Equal(pt, []byte("hi all")) {
		t.Fatalf("server decrypted %q", pt)
	}
}

func TestSend_PublicOversizedRejected(t *testing.T) {
	f, svc := newFixture(t, "alice")
	f.loadRoom(t, "lobby", domain.PublicChannel, "alice")

	long := make([]byte, crypto.MaxServerPayload(&f.serverKey.PublicKey)+1)
	_, err := svc.SendMessage(context.Background(), "lobby", long)
	if !errors.Is(err, crypto.ErrMessageTooLong) {
		t.Fatalf("got %v, want ErrMessageTooLong", err)
	}
	if len(f.transport.delivered) != 0 {
		t.Fatal("oversized message reached the transport")
	}
}

func TestSend_RoomNotLoaded(t *testing.T) {
	_, svc := newFixture(t, "alice")
	if _, err := svc.SendMessage(context.Background(), "ghost", []byte("x")); !errors.Is(err, roster.ErrRoomNotLoaded) {
		t.Fatalf("got %v, want ErrRoomNotLoaded", err)
	}
}

func TestSend_CancelledContextDiscards(t *testing.T) {
	f, svc := newFixture(t, "alice", "bob")
	f.loadRoom(t, "r1", domain.Direct, "alice", "bob")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.SendMessage(ctx, "r1", []byte("late")); err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if len(f.transport.delivered) != 0 {
		t.Fatal("cancelled send reached the transport")
	}
}

func TestReceive_PassThroughWithoutWrappedKeys(t *testing.T) {
	f, _ := newFixture(t, "alice", "bob")

	env := domain.Envelope{
		SenderID: "bob",
		RoomID:   "lobby",
		Content:  []byte("already plaintext from the server"),
	}
	res, err := f.receiver("alice").ReceiveMessage(env)
	if err != nil {
		t.Fatal(err)
	}
	if res.Discarded || !bytes.Equal(res.Plaintext, env.Content) {
		t.Fatalf("pass-through mangled: %+v", res)
	}
}

func TestReceive_NotRecipient(t *testing.T) {
	f, svc := newFixture(t, "alice", "bob", "eve")
	f.loadRoom(t, "r1", domain.Direct, "alice", "bob")

	env, err := svc.SendMessage(context.Background(), "r1", []byte("for bob only"))
	if err != nil {
		t.Fatal(err)
	}

	res, err := f.receiver("eve").ReceiveMessage(env)
	if err != nil {
		t.Fatalf("non-addressing must not be an error: %v", err)
	}
	if !res.Discarded || res.Reason != envelope.NotRecipient {
		t.Fatalf("got %+v, want NotRecipient discard", res)
	}
}

func TestReceive_TamperedContent(t *testing.T) {
	f, svc := newFixture(t, "alice", "bob")
	f.loadRoom(t, "r1", domain.Direct, "alice", "bob")

	env, err := svc.SendMessage(context.Background(), "r1", []byte("original"))
	if err != nil {
		t.Fatal(err)
	}
	env.Content[len(env.Content)-1] ^= 0x01

	if _, err := f.receiver("bob").ReceiveMessage(env); !errors.Is(err, crypto.ErrCiphertext) {
		t.Fatalf("got %v, want ErrCiphertext", err)
	}
}

func TestDirectRoom_Scenario(t *testing.T) {
	// Identities A and B, direct room R1 = {A, B}; A sends "hello".
	f, svc := newFixture(t, "A", "B")
	f.loadRoom(t, "R1", domain.Direct, "A", "B")

	env, err := svc.SendMessage(context.Background(), "R1", []byte("hello"))
	if err != nil {
		t.Fatal(err)
	}

	if len(env.WrappedKeys) != 1 || env.WrappedKeys[0].RecipientID != "B" {
		t.Fatalf("wrapped keys = %+v, want exactly one entry for B", env.WrappedKeys)
	}
	if len(env.Content) < crypto.IVSize+16+crypto.TagSize ||
		(len(env.Content)-crypto.IVSize-crypto.TagSize)%16 != 0 {
		t.Fatalf("content is not iv||cbc blocks||tag: %d bytes", len(env.Content))
	}
	if env.SenderID != "A" || env.RoomID != "R1" || env.Timestamp == 0 {
		t.Fatalf("envelope header wrong: %+v", env)
	}

	res, err := f.receiver("B").ReceiveMessage(env)
	if err != nil {
		t.Fatal(err)
	}
	if res.Discarded || string(res.Plaintext) != "hello" {
		t.Fatalf("B got %+v, want \"hello\"", res)
	}
}
