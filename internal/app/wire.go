package app

import (
	"net/http"

	"parley/internal/domain"
	"parley/internal/relay"
	identitysvc "parley/internal/services/identity"
	"parley/internal/store"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Keys     domain.KeyStore
	Identity domain.IdentityService
	Relay    *relay.HTTP
	HTTP     *http.Client
	cfg      Config
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	keys := store.NewKeyFileStore(cfg.Home)
	rc := relay.NewHTTP(cfg.RelayURL, httpClient, cfg.Log)
	ids := identitysvc.New(keys, rc)

	return &Wire{
		Keys:     keys,
		Identity: ids,
		Relay:    rc,
		HTTP:     httpClient,
		cfg:      cfg,
	}, nil
}
