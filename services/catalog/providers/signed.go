// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/datatypes"
)

// tokenEarlyRefresh is how long before expiry a cached token is discarded.
const tokenEarlyRefresh = 60 * time.Second

// SignedConfig extends StacConfig with OAuth2 client-credentials auth and
// an asset-signing endpoint, for catalogs whose assets are not public.
type SignedConfig struct {
	Stac StacConfig

	// TokenURL is the OAuth2 client-credentials token endpoint.
	TokenURL string
	ClientID string

	// ClientSecret stays sealed in locked memory between token exchanges;
	// the plaintext only exists for the duration of an exchange.
	ClientSecret *memguard.Enclave

	// SignURL signs asset locators: GET SignURL?href=<locator> returns
	// {"href": "<signed>", "expires_at": "<RFC3339>"}.
	SignURL string
}

type signResponse struct {
	Href      string `json:"href"`
	ExpiresAt string `json:"expires_at"`
}

// signedHref is a cached signing result, reusable until its validity window
// closes.
type signedHref struct {
	href   string
	expiry time.Time
}

// SignedProvider wraps StacProvider search mechanics with a cached bearer
// token (refreshed 60s before expiry) and per-asset signing. Signatures are
// cached until the validity window the sign endpoint reports, and scenes
// carry that window in ExpiresAt.
type SignedProvider struct {
	*StacProvider
	config SignedConfig

	mu         sync.Mutex
	token      *oauth2.Token
	signed     map[string]signedHref
	signExpiry time.Time
}

// NewSignedProvider creates a provider for a token-gated STAC catalog.
func NewSignedProvider(config SignedConfig, client HTTPClient, logger *slog.Logger) *SignedProvider {
	p := &SignedProvider{
		StacProvider: NewStacProvider(config.Stac, client, logger),
		config:       config,
		signed:       make(map[string]signedHref),
	}
	p.StacProvider.authorize = p.setBearer
	p.StacProvider.refreshAuth = p.dropToken
	return p
}

// ResolveAsset signs the locator. A signature is reused until it is within
// the early-refresh margin of the validity window the sign endpoint reports,
// so a multi-band tile render does not re-sign every request.
func (p *SignedProvider) ResolveAsset(ctx context.Context, locator string) (string, error) {
	p.mu.Lock()
	if entry, ok := p.signed[locator]; ok && time.Until(entry.expiry) > tokenEarlyRefresh {
		p.mu.Unlock()
		return entry.href, nil
	}
	p.mu.Unlock()

	u := p.config.SignURL + "?href=" + url.QueryEscape(locator)

	var signed signResponse
	if err := p.doJSON(ctx, http.MethodGet, u, nil, &signed); err != nil {
		return "", err
	}
	if signed.Href == "" {
		return "", fmt.Errorf("providers: %s signing endpoint returned empty href", p.Name())
	}

	if signed.ExpiresAt != "" {
		expiry, err := time.Parse(time.RFC3339, signed.ExpiresAt)
		if err != nil {
			p.logger.Warn("signing endpoint returned bad expires_at",
				"expires_at", signed.ExpiresAt, "error", err)
		} else {
			p.mu.Lock()
			p.signed[locator] = signedHref{href: signed.Href, expiry: expiry.UTC()}
			p.signExpiry = expiry.UTC()
			p.mu.Unlock()
		}
	}
	return signed.Href, nil
}

// Search runs the embedded STAC search, then stamps the signature validity
// window on each scene so the cache can expire stale signed locators. Before
// any signature has been issued the bearer token expiry is the best bound.
func (p *SignedProvider) Search(ctx context.Context, req datatypes.SearchRequest) (*datatypes.SearchResult, error) {
	result, err := p.StacProvider.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	expiry := p.scenesExpiry()
	if expiry != nil {
		for i := range result.Scenes {
			result.Scenes[i].ExpiresAt = expiry
		}
	}
	return result, nil
}

// setBearer attaches a cached bearer token, fetching or refreshing it when
// missing or within the early-refresh margin of expiry.
func (p *SignedProvider) setBearer(ctx context.Context, req *http.Request) error {
	tok, err := p.currentToken(ctx)
	if err != nil {
		return err
	}
	tok.SetAuthHeader(req)
	return nil
}

func (p *SignedProvider) currentToken(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != nil && p.token.Valid() &&
		(p.token.Expiry.IsZero() || time.Until(p.token.Expiry) > tokenEarlyRefresh) {
		return p.token, nil
	}

	tok, err := p.exchangeToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch client-credentials token: %w", err)
	}
	p.token = tok
	return tok, nil
}

// exchangeToken runs one client-credentials exchange. The sealed secret is
// opened only for the duration of the call and wiped after.
func (p *SignedProvider) exchangeToken(ctx context.Context) (*oauth2.Token, error) {
	cc := &clientcredentials.Config{
		ClientID: p.config.ClientID,
		TokenURL: p.config.TokenURL,
	}
	if p.config.ClientSecret != nil {
		buf, err := p.config.ClientSecret.Open()
		if err != nil {
			return nil, fmt.Errorf("open client secret: %w", err)
		}
		defer buf.Destroy()
		cc.ClientSecret = buf.String()
	}
	return cc.Token(ctx)
}

// dropToken discards cached credentials and signatures so the next call
// re-exchanges. Called on 401 by the embedded provider's refresh path.
func (p *SignedProvider) dropToken(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = nil
	p.signed = make(map[string]signedHref)
	return nil
}

// scenesExpiry picks the freshest known signing validity window, falling
// back to the token expiry when no asset has been signed yet.
func (p *SignedProvider) scenesExpiry() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.signExpiry.IsZero() {
		t := p.signExpiry
		return &t
	}
	if p.token == nil || p.token.Expiry.IsZero() {
		return nil
	}
	t := p.token.Expiry.UTC()
	return &t
}
