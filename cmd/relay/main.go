package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parley/internal/crypto"
	"parley/internal/domain"
)

type account struct {
	passwordHash string
	publicKey    []byte
}

type server struct {
	log zerolog.Logger

	serverKeyDER []byte

	mu       sync.Mutex
	accounts map[domain.UserID]account
	tokens   map[string]domain.UserID
	rooms    map[domain.RoomID]*domain.Room
	nextRoom int
	subs     map[domain.UserID]map[chan domain.Event]struct{}

	unwrap func(blob []byte) ([]byte, error)
}

func newServer(log zerolog.Logger) (*server, error) {
	key, err := crypto.GenerateRSA()
	if err != nil {
		return nil, err
	}
	pubDER, err := crypto.EncodePublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	s := &server{
		log:          log,
		serverKeyDER: pubDER,
		accounts:     make(map[domain.UserID]account),
		tokens:       make(map[string]domain.UserID),
		rooms:        make(map[domain.RoomID]*domain.Room),
		subs:         make(map[domain.UserID]map[chan domain.Event]struct{}),
		unwrap: func(blob []byte) ([]byte, error) {
			return crypto.UnwrapFromServer(blob, key)
		},
	}

	// Every account lands in the default channel and cannot leave it.
	lobby := s.newRoomLocked(domain.PublicChannel, "general", "everyone is here")
	lobby.ForceMembership = true
	return s, nil
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()

	s, err := newServer(log)
	if err != nil {
		log.Fatal().Err(err).Msg("server key generation failed")
	}

	log.Info().Str("addr", *addr).Msg("relay listening")
	if err := http.ListenAndServe(*addr, s.routes()); err != nil {
		log.Fatal().Err(err).Msg("relay stopped")
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /auth", s.handleAuth)
	mux.HandleFunc("GET /rooms", s.handleRooms)
	mux.HandleFunc("POST /rooms", s.handleCreateRoom)
	mux.HandleFunc("POST /rooms/direct/{peer}", s.handleDirectRoom)
	mux.HandleFunc("POST /rooms/{id}/join", s.handleJoin)
	mux.HandleFunc("POST /rooms/{id}/members", s.handleAddMember)
	mux.HandleFunc("POST /rooms/{id}/leave", s.handleLeave)
	mux.HandleFunc("POST /deliver", s.handleDeliver)
	mux.HandleFunc("GET /events", s.handleEvents)
	return mux
}

// ---------- accounts ----------

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username     string `json:"username"`
		PasswordHash string `json:"password_hash"`
		PublicKey    []byte `json:"public_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := crypto.ParsePublicKey(in.PublicKey); err != nil {
		http.Error(w, "bad public key", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := domain.UserID(in.Username)
	if _, exists := s.accounts[id]; exists {
		http.Error(w, "username taken", http.StatusConflict)
		return
	}
	s.accounts[id] = account{passwordHash: in.PasswordHash, publicKey: in.PublicKey}
	for _, room := range s.rooms {
		if room.ForceMembership {
			s.addMemberLocked(room, id)
		}
	}
	s.log.Info().Str("user", in.Username).Msg("registered")
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleAuth(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username     string `json:"username"`
		PasswordHash string `json:"password_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := domain.UserID(in.Username)
	acct, ok := s.accounts[id]
	if !ok || acct.passwordHash != in.PasswordHash {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
		return
	}

	var tok [16]byte
	if _, err := rand.Read(tok[:]); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	token := hex.EncodeToString(tok[:])
	s.tokens[token] = id

	s.broadcastPresenceLocked(id, true)

	_ = json.NewEncoder(w).Encode(domain.AuthResult{
		Token:           token,
		UserID:          id,
		PublicKey:       acct.publicKey,
		ServerPublicKey: s.serverKeyDER,
	})
}

// authed resolves the bearer token. Returns "" if missing or unknown.
func (s *server) authed(r *http.Request) domain.UserID {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[h[len(prefix):]]
}

// ---------- rooms ----------

func (s *server) handleRooms(w http.ResponseWriter, r *http.Request) {
	user := s.authed(r)
	if user == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Room{}
	for _, room := range s.rooms {
		if memberOf(room, user) {
			out = append(out, *room)
		}
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (s *server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	user := s.authed(r)
	if user == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var in struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Private     bool   `json:"private"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kind := domain.PublicChannel
	if in.Private {
		kind = domain.PrivateChannel
	}
	room := s.newRoomLocked(kind, in.Name, in.Description, user)
	s.emitLocked(user, domain.Event{
		Type: domain.EventRoom,
		Room: &domain.RoomEvent{Room: *room, MoveTo: true},
	})
	_ = json.NewEncoder(w).Encode(room)
}

func (s *server) handleDirectRoom(w http.ResponseWriter, r *http.Request) {
	user := s.authed(r)
	if user == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	peer := domain.UserID(r.PathValue("peer"))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[peer]; !ok {
		http.Error(w, "no such user", http.StatusNotFound)
		return
	}

	// Reuse the existing direct room with this pair if there is one.
	for _, room := range s.rooms {
		if room.Kind == domain.Direct && memberOf(room, user) && memberOf(room, peer) {
			_ = json.NewEncoder(w).Encode(room)
			return
		}
	}

	room := s.newRoomLocked(domain.Direct, "", "", user, peer)
	s.emitLocked(peer, domain.Event{
		Type: domain.EventRoom,
		Room: &domain.RoomEvent{Room: *room},
	})
	_ = json.NewEncoder(w).Encode(room)
}

func (s *server) handleJoin(w http.ResponseWriter, r *http.Request) {
	user := s.authed(r)
	if user == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[domain.RoomID(r.PathValue("id"))]
	if !ok {
		http.Error(w, "no such room", http.StatusNotFound)
		return
	}
	if room.Kind != domain.PublicChannel {
		http.Error(w, "room is not joinable", http.StatusForbidden)
		return
	}
	s.addMemberLocked(room, user)
	_ = json.NewEncoder(w).Encode(room)
}

func (s *server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	user := s.authed(r)
	if user == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var in struct {
		UserID domain.UserID `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[domain.RoomID(r.PathValue("id"))]
	if !ok || !memberOf(room, user) {
		http.Error(w, "no such room", http.StatusNotFound)
		return
	}
	if _, exists := s.accounts[in.UserID]; !exists {
		http.Error(w, "no such user", http.StatusNotFound)
		return
	}
	s.addMemberLocked(room, in.UserID)
	s.emitLocked(in.UserID, domain.Event{
		Type: domain.EventRoom,
		Room: &domain.RoomEvent{Room: *room},
	})
	w.WriteHeader(http.StatusOK)
}

func (s *server) handleLeave(w http.ResponseWriter, r *http.Request) {
	user := s.authed(r)
	if user == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[domain.RoomID(r.PathValue("id"))]
	if !ok || !memberOf(room, user) {
		http.Error(w, "no such room", http.StatusNotFound)
		return
	}
	if room.ForceMembership || room.Kind == domain.Direct {
		http.Error(w, "cannot leave this room", http.StatusForbidden)
		return
	}

	members := room.Members[:0]
	for _, m := range room.Members {
		if m.UserID != user {
			members = append(members, m)
		}
	}
	room.Members = members

	s.emitLocked(user, domain.Event{
		Type:        domain.EventRoomRemoved,
		RoomRemoved: &domain.RoomRemovedEvent{RoomID: room.ID},
	})
	s.broadcastMembershipLocked(room)
	w.WriteHeader(http.StatusOK)
}

func (s *server) newRoomLocked(kind domain.RoomKind, name, desc string, members ...domain.UserID) *domain.Room {
	s.nextRoom++
	room := &domain.Room{
		ID:          domain.RoomID(strconv.Itoa(s.nextRoom)),
		Kind:        kind,
		Name:        name,
		Description: desc,
	}
	for _, m := range members {
		room.Members = append(room.Members, domain.Member{
			UserID:    m,
			PublicKey: s.accounts[m].publicKey,
		})
	}
	s.rooms[room.ID] = room
	return room
}

func (s *server) addMemberLocked(room *domain.Room, user domain.UserID) {
	if memberOf(room, user) {
		return
	}
	room.Members = append(room.Members, domain.Member{
		UserID:    user,
		PublicKey: s.accounts[user].publicKey,
	})
	s.broadcastMembershipLocked(room)
}

func memberOf(room *domain.Room, user domain.UserID) bool {
	for _, m := range room.Members {
		if m.UserID == user {
			return true
		}
	}
	return false
}

// ---------- events ----------

func (s *server) emitLocked(user domain.UserID, ev domain.Event) {
	for ch := range s.subs[user] {
		select {
		case ch <- ev:
		default:
			// Slow consumer; it will resync on reconnect.
		}
	}
}

func (s *server) broadcastMembershipLocked(room *domain.Room) {
	ev := domain.Event{
		Type: domain.EventMembership,
		Membership: &domain.MembershipEvent{
			RoomID:  room.ID,
			Members: append([]domain.Member(nil), room.Members...),
		},
	}
	for _, m := range room.Members {
		s.emitLocked(m.UserID, ev)
	}
}

func (s *server) broadcastPresenceLocked(user domain.UserID, active bool) {
	ev := domain.Event{
		Type:     domain.EventPresence,
		Presence: &domain.PresenceEvent{UserID: user, Active: active},
	}
	for id := range s.accounts {
		if id != user {
			s.emitLocked(id, ev)
		}
	}
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	user := s.authed(r)
	if user == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan domain.Event, 32)
	s.mu.Lock()
	if s.subs[user] == nil {
		s.subs[user] = make(map[chan domain.Event]struct{})
	}
	s.subs[user][ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs[user], ch)
		s.broadcastPresenceLocked(user, false)
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev := <-ch:
			b, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
	}
}

// ---------- messages ----------

func (s *server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	user := s.authed(r)
	if user == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var env domain.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	env.SenderID = user // the token decides who sent it

	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[env.RoomID]
	if !ok || !memberOf(room, user) {
		http.Error(w, "no such room", http.StatusNotFound)
		return
	}

	if !env.Private() {
		if room.Kind != domain.PublicChannel {
			http.Error(w, "private room requires wrapped keys", http.StatusBadRequest)
			return
		}
		// Public path: the envelope is encrypted to our key. Decrypt
		// and rebroadcast the plaintext.
		pt, err := s.unwrap(env.Content)
		if err != nil {
			http.Error(w, "cannot decrypt public payload", http.StatusBadRequest)
			return
		}
		env.Content = pt
	} else if room.Kind == domain.PublicChannel {
		http.Error(w, "public channel does not take wrapped keys", http.StatusBadRequest)
		return
	}

	ev := domain.Event{Type: domain.EventMessage, Message: &env}
	for _, m := range room.Members {
		if m.UserID != user {
			s.emitLocked(m.UserID, ev)
		}
	}
	s.log.Debug().Str("room", string(room.ID)).Str("from", string(user)).Msg("delivered")
	w.WriteHeader(http.StatusOK)
}
