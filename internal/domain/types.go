package domain

import (
	"encoding/json"
	"fmt"
)

// UserID identifies an account on the directory service.
type UserID string

// RoomID identifies a room on the transport service.
type RoomID string

// Fingerprint is a short hex digest of a public key, for display.
type Fingerprint string

// RoomKind is the closed set of room flavours. It is fixed for a room's
// lifetime as observed by the client.
type RoomKind int

const (
	PublicChannel RoomKind = iota
	PrivateChannel
	Direct
)

var roomKindNames = map[RoomKind]string{
	PublicChannel:  "public",
	PrivateChannel: "private",
	Direct:         "direct",
}

func (k RoomKind) String() string {
	if s, ok := roomKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("RoomKind(%d)", int(k))
}

// MarshalJSON encodes the kind as its wire name.
func (k RoomKind) MarshalJSON() ([]byte, error) {
	s, ok := roomKindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown room kind %d", int(k))
	}
	return json.Marshal(s)
}

// UnmarshalJSON mirrors MarshalJSON.
func (k *RoomKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for kind, name := range roomKindNames {
		if name == s {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown room kind %q", s)
}

// Member is one room participant together with the public key the
// directory service published for them. PublicKey is PKIX DER.
type Member struct {
	UserID    UserID `json:"user_id"`
	PublicKey []byte `json:"public_key"`
}

// Room is the transport's view of a channel or direct conversation.
type Room struct {
	ID              RoomID   `json:"id"`
	Kind            RoomKind `json:"kind"`
	Name            string   `json:"name,omitempty"`
	Description     string   `json:"description,omitempty"`
	Members         []Member `json:"members"`
	ForceMembership bool     `json:"force_membership,omitempty"`
}

// WrappedKey is one recipient's copy of a message's symmetric key,
// encrypted under that recipient's public key.
type WrappedKey struct {
	RecipientID UserID `json:"recipient_id"`
	Key         []byte `json:"key"`
}

// Envelope is the wire unit for one message.
//
// For private and direct rooms, Content is iv||AES-CBC ciphertext||tag
// and WrappedKeys holds one entry per recipient. For public channels,
// Content is RSA-OAEP ciphertext under the server's key and
// WrappedKeys is absent.
type Envelope struct {
	SenderID    UserID       `json:"sender_id"`
	RoomID      RoomID       `json:"room_id"`
	Timestamp   int64        `json:"timestamp"`
	Content     []byte       `json:"content"`
	WrappedKeys []WrappedKey `json:"wrapped_keys,omitempty"`
}

// Private reports whether the envelope carries per-recipient keys.
func (e Envelope) Private() bool { return len(e.WrappedKeys) > 0 }

// Identity holds the local account and its long-term RSA key pair.
// PrivateKey is PKCS#8 DER, PublicKey is PKIX DER. The private key
// never leaves the key store except through LoadIdentity.
type Identity struct {
	UserID     UserID `json:"user_id"`
	Username   string `json:"username"`
	PublicKey  []byte `json:"public_key"`
	PrivateKey []byte `json:"private_key"`
}

// AuthResult is the directory's answer to a successful authentication.
type AuthResult struct {
	Token           string `json:"token"`
	UserID          UserID `json:"user_id"`
	PublicKey       []byte `json:"public_key"`
	ServerPublicKey []byte `json:"server_public_key"`
}

// MembershipEvent replaces a room's member list wholesale.
type MembershipEvent struct {
	RoomID  RoomID   `json:"room_id"`
	Members []Member `json:"members"`
}

// RoomEvent announces a room the account was added to or that changed shape.
type RoomEvent struct {
	Room   Room `json:"room"`
	MoveTo bool `json:"move_to,omitempty"`
}

// RoomRemovedEvent announces a room the account no longer belongs to.
type RoomRemovedEvent struct {
	RoomID RoomID `json:"room_id"`
}

// PresenceEvent reports a user going online or offline. Presence is
// display state only and never feeds encryption decisions.
type PresenceEvent struct {
	UserID UserID `json:"user_id"`
	Active bool   `json:"active"`
}

// Event type discriminators on the subscribe stream.
const (
	EventMessage     = "message"
	EventMembership  = "membership"
	EventRoom        = "room"
	EventRoomRemoved = "room_removed"
	EventPresence    = "presence"
)

// Event is one item on the subscribe stream. Exactly one payload field
// is set, selected by Type.
type Event struct {
	Type        string            `json:"type"`
	Message     *Envelope         `json:"message,omitempty"`
	Membership  *MembershipEvent  `json:"membership,omitempty"`
	Room        *RoomEvent        `json:"room,omitempty"`
	RoomRemoved *RoomRemovedEvent `json:"room_removed,omitempty"`
	Presence    *PresenceEvent    `json:"presence,omitempty"`
}
