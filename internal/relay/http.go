package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"parley/internal/domain"
)

// HTTP is a relay client over plain JSON/HTTP.
type HTTP struct {
	Base string
	HTTP *http.Client
	Log  zerolog.Logger
}

// NewHTTP returns a client for the relay at base.
func NewHTTP(base string, client *http.Client, log zerolog.Logger) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{Base: base, HTTP: client, Log: log.With().Str("component", "relay").Logger()}
}

// Register creates an account and publishes its public key.
func (c *HTTP) Register(ctx context.Context, username, passwordHash string, publicKey []byte) error {
	in := struct {
		Username     string `json:"username"`
		PasswordHash string `json:"password_hash"`
		PublicKey    []byte `json:"public_key"`
	}{username, passwordHash, publicKey}
	return c.post(ctx, "/register", "", in, nil)
}

// Authenticate logs in and returns the session token plus the server's
// public key used for public-channel encryption.
func (c *HTTP) Authenticate(ctx context.Context, username, passwordHash string) (domain.AuthResult, error) {
	in := struct {
		Username     string `json:"username"`
		PasswordHash string `json:"password_hash"`
	}{username, passwordHash}
	var out domain.AuthResult
	if err := c.post(ctx, "/auth", "", in, &out); err != nil {
		return domain.AuthResult{}, err
	}
	return out, nil
}

// Rooms lists the rooms the account belongs to, members included.
func (c *HTTP) Rooms(ctx context.Context, token string) ([]domain.Room, error) {
	var out []domain.Room
	if err := c.getJSON(ctx, "/rooms", token, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DirectRoom returns (creating if needed) the two-party direct room
// with peer.
func (c *HTTP) DirectRoom(ctx context.Context, token string, peer domain.UserID) (domain.Room, error) {
	var out domain.Room
	err := c.post(ctx, "/rooms/direct/"+url.PathEscape(string(peer)), token, nil, &out)
	if err != nil {
		return domain.Room{}, err
	}
	return out, nil
}

// Deliver hands one finished envelope to the relay. The relay fans it
// out; this client never retries (a retry means a fresh envelope).
func (c *HTTP) Deliver(ctx context.Context, token string, env domain.Envelope) error {
	return c.post(ctx, "/deliver", token, env, nil)
}

func (c *HTTP) post(ctx context.Context, path, token string, in, out any) error {
	var body *bytes.Buffer
	if in != nil {
		body = new(bytes.Buffer)
		if err := json.NewEncoder(body).Encode(in); err != nil {
			return err
		}
	} else {
		body = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay post %s: %s", path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTP) getJSON(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("relay get %s: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Compile-time assertions that HTTP implements the collaborator contracts.
var (
	_ domain.DirectoryClient = (*HTTP)(nil)
	_ domain.TransportClient = (*HTTP)(nil)
)
