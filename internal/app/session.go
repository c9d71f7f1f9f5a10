package app

import (
	"context"

	"github.com/rs/zerolog"

	"parley/internal/crypto"
	"parley/internal/domain"
	"parley/internal/roster"
	envelopesvc "parley/internal/services/envelope"
)

// Message is one decrypted incoming message surfaced to the caller.
type Message struct {
	From      domain.UserID
	Room      domain.RoomID
	Timestamp int64
	Plaintext []byte
}

// Session is one logged-in connection. It owns the membership cache
// and the single goroutine that applies transport events to it, so
// cache updates have exactly one writer.
type Session struct {
	UserID    domain.UserID
	Token     string
	Roster    *roster.Cache
	Envelopes *envelopesvc.Service

	transport domain.TransportClient
	log       zerolog.Logger

	messages chan Message
	cancel   context.CancelFunc
	done     chan struct{}
}

// Login authenticates against the relay, loads the account's rooms
// into a fresh membership cache, subscribes to the event stream and
// starts the event pump. The first room, if any, becomes active.
func (w *Wire) Login(ctx context.Context, username, passphrase, passwordHash string) (*Session, error) {
	auth, err := w.Relay.Authenticate(ctx, username, passwordHash)
	if err != nil {
		return nil, err
	}
	serverKey, err := crypto.ParsePublicKey(auth.ServerPublicKey)
	if err != nil {
		return nil, err
	}

	// One KDF and one disk read for the whole session: the private key
	// is immutable while the process lives, so the event pump must not
	// pay for a key load per incoming message.
	id, err := w.Keys.LoadIdentity(passphrase, auth.UserID)
	if err != nil {
		return nil, err
	}
	priv, err := crypto.ParsePrivateKey(id.PrivateKey)
	if err != nil {
		return nil, err
	}

	cache := roster.New(auth.UserID)
	svc := envelopesvc.New(auth.UserID, auth.Token, serverKey, priv, cache, w.Relay, w.cfg.Log)

	rooms, err := w.Relay.Rooms(ctx, auth.Token)
	if err != nil {
		return nil, err
	}
	for _, r := range rooms {
		cache.LoadRoom(r)
	}
	if len(rooms) > 0 {
		if err := cache.SetActive(rooms[0].ID); err != nil {
			return nil, err
		}
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	events, err := w.Relay.Subscribe(pumpCtx, auth.Token)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Session{
		UserID:    auth.UserID,
		Token:     auth.Token,
		Roster:    cache,
		Envelopes: svc,
		transport: w.Relay,
		log:       w.cfg.Log.With().Str("component", "session").Logger(),
		messages:  make(chan Message, 16),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.pump(pumpCtx, events)
	return s, nil
}

// pump is the sole consumer of the event stream and the sole writer of
// the membership cache.
func (s *Session) pump(ctx context.Context, events <-chan domain.Event) {
	defer close(s.done)
	defer close(s.messages)

	for ev := range events {
		switch ev.Type {
		case domain.EventMembership:
			if ev.Membership != nil {
				s.Roster.ApplyMembership(*ev.Membership)
			}
		case domain.EventRoom:
			if ev.Room != nil {
				s.Roster.LoadRoom(ev.Room.Room)
				if ev.Room.MoveTo {
					if err := s.Roster.SetActive(ev.Room.Room.ID); err != nil {
						s.log.Warn().Err(err).Msg("cannot activate new room")
					}
				}
			}
		case domain.EventRoomRemoved:
			if ev.RoomRemoved != nil {
				s.Roster.RemoveRoom(ev.RoomRemoved.RoomID)
			}
		case domain.EventPresence:
			// Display state only; never feeds encryption decisions.
		case domain.EventMessage:
			if ev.Message == nil {
				continue
			}
			res, err := s.Envelopes.ReceiveMessage(*ev.Message)
			if err != nil {
				s.log.Warn().Err(err).Str("from", string(ev.Message.SenderID)).Msg("dropping message")
				continue
			}
			if res.Discarded {
				continue
			}
			select {
			case s.messages <- Message{
				From:      ev.Message.SenderID,
				Room:      ev.Message.RoomID,
				Timestamp: ev.Message.Timestamp,
				Plaintext: res.Plaintext,
			}:
			case <-ctx.Done():
				s.Roster.Invalidate()
				return
			}
		}
	}

	// Stream gone: membership can no longer be trusted.
	s.Roster.Invalidate()
}

// Messages returns the stream of decrypted incoming messages. It
// closes when the session ends.
func (s *Session) Messages() <-chan Message { return s.messages }

// Send encrypts plaintext for the given room and delivers it.
func (s *Session) Send(ctx context.Context, roomID domain.RoomID, plaintext []byte) (domain.Envelope, error) {
	return s.Envelopes.SendMessage(ctx, roomID, plaintext)
}

// SetActiveRoom switches composition to another loaded room.
func (s *Session) SetActiveRoom(id domain.RoomID) error {
	return s.Roster.SetActive(id)
}

// DirectRoom fetches (or creates) the direct room with peer, loads it
// and makes it active.
func (s *Session) DirectRoom(ctx context.Context, peer domain.UserID) (domain.Room, error) {
	room, err := s.transport.DirectRoom(ctx, s.Token, peer)
	if err != nil {
		return domain.Room{}, err
	}
	s.Roster.LoadRoom(room)
	if err := s.Roster.SetActive(room.ID); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// Close tears the session down and waits for the pump to exit.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}
