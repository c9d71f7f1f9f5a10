package envelope

import (
	"context"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"parley/internal/crypto"
	"parley/internal/domain"
	"parley/internal/roster"
)

// DiscardReason says why a received envelope produced no plaintext.
type DiscardReason string

const (
	// NotRecipient covers both "our ID is not in the wrapped-key list"
	// and "unwrap failed with our key". The two are indistinguishable
	// on purpose: distinguishing them would leak whether a ciphertext
	// was well-formed for us.
	NotRecipient DiscardReason = "not_recipient"
)

// Result is the outcome of receiving one envelope.
type Result struct {
	Plaintext []byte
	Discarded bool
	Reason    DiscardReason
}

// Service builds outgoing envelopes and opens incoming ones.
type Service struct {
	self      domain.UserID
	token     string
	serverKey *rsa.PublicKey
	priv      *rsa.PrivateKey

	roster    *roster.Cache
	transport domain.TransportClient
	log       zerolog.Logger
}

// New constructs an envelope service for one logged-in identity. The
// private key is loaded once at login; it never changes while the
// process lives, and holding it here keeps key unwrapping off the
// KDF/disk path on every incoming message.
func New(
	self domain.UserID,
	token string,
	serverKey *rsa.PublicKey,
	priv *rsa.PrivateKey,
	cache *roster.Cache,
	transport domain.TransportClient,
	log zerolog.Logger,
) *Service {
	return &Service{
		self:      self,
		token:     token,
		serverKey: serverKey,
		priv:      priv,
		roster:    cache,
		transport: transport,
		log:       log.With().Str("component", "envelope").Logger(),
	}
}

// SendMessage encrypts plaintext for the given room and hands the
// envelope to the transport. The returned envelope is what went on the
// wire. Delivery is at-most-once from this component's perspective; a
// retry needs a new call, which regenerates a fresh symmetric key.
func (s *Service) SendMessage(ctx context.Context, roomID domain.RoomID, plaintext []byte) (domain.Envelope, error) {
	vis, err := s.roster.Classify(roomID)
	if err != nil {
		return domain.Envelope{}, err
	}

	env := domain.Envelope{
		SenderID:  s.self,
		RoomID:    roomID,
		Timestamp: time.Now().Unix(),
	}

	switch vis {
	case roster.Public:
		env.Content, err = crypto.WrapForServer(plaintext, s.serverKey)
		if err != nil {
			return domain.Envelope{}, err
		}
	case roster.Private:
		// Resolve and wrap under the roster lock: no membership event
		// may land between reading the member list and finishing the
		// last wrap, or a removed member could still get a key.
		err = s.roster.Atomically(roomID, func(_ domain.Room, recipients []domain.Member) error {
			key, err := crypto.GenerateSymmetricKey()
			if err != nil {
				return err
			}
			defer crypto.Wipe(key)

			env.Content, err = crypto.EncryptContent(plaintext, key)
			if err != nil {
				return err
			}
			env.WrappedKeys = make([]domain.WrappedKey, 0, len(recipients))
			for _, r := range recipients {
				pub, err := crypto.ParsePublicKey(r.PublicKey)
				if err != nil {
					return fmt.Errorf("recipient %s: %w", r.UserID, err)
				}
				wrapped, err := crypto.WrapKey(key, pub)
				if err != nil {
					return fmt.Errorf("recipient %s: %w", r.UserID, err)
				}
				env.WrappedKeys = append(env.WrappedKeys, domain.WrappedKey{
					RecipientID: r.UserID,
					Key:         wrapped,
				})
			}
			return nil
		})
		if err != nil {
			return domain.Envelope{}, err
		}
	}

	// The envelope is bound to the room it was built for. If the
	// caller's context died meanwhile (active room changed, logout),
	// discard rather than deliver late.
	if err := ctx.Err(); err != nil {
		return domain.Envelope{}, err
	}

	if err := s.transport.Deliver(ctx, s.token, env); err != nil {
		return domain.Envelope{}, err
	}
	s.log.Debug().
		Str("room", string(roomID)).
		Int("recipients", len(env.WrappedKeys)).
		Msg("envelope delivered")
	return env, nil
}

// ReceiveMessage opens one envelope.
//
// Envelopes without wrapped keys are the public-channel path: the
// server already decrypted and rebroadcast them, so the content passes
// through unchanged. For private envelopes, a missing wrapped-key
// entry for our ID, or one our key cannot unwrap, discards the
// message silently.
func (s *Service) ReceiveMessage(env domain.Envelope) (Result, error) {
	if !env.Private() {
		return Result{Plaintext: env.Content}, nil
	}

	var wrapped []byte
	for _, wk := range env.WrappedKeys {
		if wk.RecipientID == s.self {
			wrapped = wk.Key
			break
		}
	}
	if wrapped == nil {
		return Result{Discarded: true, Reason: NotRecipient}, nil
	}

	key, err := crypto.UnwrapKey(wrapped, s.priv)
	if err != nil {
		// Same outcome as not being addressed at all.
		return Result{Discarded: true, Reason: NotRecipient}, nil
	}
	defer crypto.Wipe(key)

	plaintext, err := crypto.DecryptContent(env.Content, key)
	if err != nil {
		return Result{}, err
	}
	return Result{Plaintext: plaintext}, nil
}
