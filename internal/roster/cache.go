package roster

import (
	"errors"
	"fmt"
	"sync"

	"parley/internal/domain"
)

// State tracks how much the cache knows about one room.
type State int

const (
	// Unloaded: no cache entry; the room must be loaded before use.
	Unloaded State = iota
	// Loaded: members are current as of the last event or load.
	Loaded
	// Stale: members may be outdated (for example after a stream drop);
	// the room must be reloaded before encryption may use it.
	Stale
)

// Visibility is the encryption path a room uses.
type Visibility int

const (
	// Public rooms encrypt once to the server's key.
	Public Visibility = iota
	// Private rooms encrypt per recipient.
	Private
)

var (
	// ErrRoomNotLoaded guards recipient resolution against a stale,
	// absent, or non-active room's member list.
	ErrRoomNotLoaded = errors.New("room membership not loaded")
)

type entry struct {
	room  domain.Room
	state State
}

// Cache is the per-process membership cache. One room at a time is
// "active" (the room currently being composed into); recipient
// resolution is only served for that room.
type Cache struct {
	self domain.UserID

	mu     sync.Mutex
	rooms  map[domain.RoomID]*entry
	active domain.RoomID
}

// New returns an empty cache for the given local identity.
func New(self domain.UserID) *Cache {
	return &Cache{self: self, rooms: make(map[domain.RoomID]*entry)}
}

// LoadRoom installs or refreshes a room's entry and marks it Loaded.
func (c *Cache) LoadRoom(room domain.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room.ID] = &entry{room: room, state: Loaded}
}

// SetActive marks the room currently being composed into. The room
// must be Loaded first.
func (c *Cache) SetActive(id domain.RoomID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.rooms[id]
	if !ok || e.state != Loaded {
		return fmt.Errorf("%w: %s", ErrRoomNotLoaded, id)
	}
	c.active = id
	return nil
}

// Active returns the active room ID, or "" if none is set.
func (c *Cache) Active() domain.RoomID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ApplyMembership replaces a room's member list. Events for rooms the
// cache has never loaded are dropped; events for a non-active room
// update that room's own entry without touching the active one.
func (c *Cache) ApplyMembership(ev domain.MembershipEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.rooms[ev.RoomID]
	if !ok {
		return
	}
	e.room.Members = append([]domain.Member(nil), ev.Members...)
}

// RemoveRoom drops a room's entry, returning it to Unloaded. The
// active slot is cleared if it pointed at the removed room.
func (c *Cache) RemoveRoom(id domain.RoomID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, id)
	if c.active == id {
		c.active = ""
	}
}

// Invalidate marks every entry Stale. Called when the event stream
// drops: membership may have changed while we were not listening, so
// nothing may be encrypted until rooms are reloaded.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.rooms {
		e.state = Stale
	}
}

// Classify maps a room onto its encryption path: Direct and private
// channels are Private, public channels are Public. Kind is immutable,
// so a Stale entry still classifies correctly.
func (c *Cache) Classify(id domain.RoomID) (Visibility, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.rooms[id]
	if !ok {
		return Public, fmt.Errorf("%w: %s", ErrRoomNotLoaded, id)
	}
	if e.room.Kind == domain.PublicChannel {
		return Public, nil
	}
	return Private, nil
}

// ResolveRecipients returns members \ {self} for the given room. It
// fails unless the room is Loaded and is the active room, so a caller
// can never encrypt against a stale or wrong room's member list.
func (c *Cache) ResolveRecipients(id domain.RoomID) ([]domain.Member, error) {
	var out []domain.Member
	err := c.Atomically(id, func(_ domain.Room, recipients []domain.Member) error {
		out = recipients
		return nil
	})
	return out, err
}

// Atomically resolves the recipient set for id and runs fn while
// holding the cache lock, so no membership mutation can land between
// resolution and whatever fn does with the result (per-recipient key
// wraps, in practice). Events arriving meanwhile queue behind the lock
// and apply once fn returns. fn must not call back into the cache.
func (c *Cache) Atomically(id domain.RoomID, fn func(room domain.Room, recipients []domain.Member) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.rooms[id]
	if !ok || e.state != Loaded || c.active != id {
		return fmt.Errorf("%w: %s", ErrRoomNotLoaded, id)
	}

	recipients := make([]domain.Member, 0, len(e.room.Members))
	for _, m := range e.room.Members {
		if m.UserID == c.self {
			continue
		}
		recipients = append(recipients, m)
	}
	return fn(e.room, recipients)
}
