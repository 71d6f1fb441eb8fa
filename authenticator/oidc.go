package authenticator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"OpenCargoRegistry/config"
)

// Identity is the external account an OIDC login resolved to.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// OIDCProvider runs the authorization code flow against an OpenID Connect issuer.
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
	config   oauth2.Config
}

// NewOIDCProvider discovers the issuer configured in cfg. redirectURL is
// the registry's callback route.
func NewOIDCProvider(ctx context.Context, cfg config.OIDCConfig, redirectURL string) (*OIDCProvider, error) {
	return NewOIDCProviderWithConfig(ctx, cfg, redirectURL, &oidc.Config{ClientID: cfg.ClientId})
}

func NewOIDCProviderWithConfig(ctx context.Context, cfg config.OIDCConfig, redirectURL string, oidcConfig *oidc.Config) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering OIDC issuer %s: %w", cfg.Issuer, err)
	}
	return &OIDCProvider{
		verifier: provider.Verifier(oidcConfig),
		config: oauth2.Config{
			ClientID:     cfg.ClientId,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  redirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

func (p *OIDCProvider) AuthCodeURL(state string, nonce string) string {
	return p.config.AuthCodeURL(state, oidc.Nonce(nonce))
}

// Exchange trades the authorization code for an ID token, verifies it
// against nonce and returns the identity it names.
func (p *OIDCProvider) Exchange(ctx context.Context, code string, nonce string) (Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchanging code: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return Identity{}, errors.New("token response has no id_token")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Identity{}, fmt.Errorf("verifying id token: %w", err)
	}
	if idToken.Nonce != nonce {
		return Identity{}, errors.New("nonce did not match")
	}

	var claims struct {
		Email             string `json:"email"`
		Name              string `json:"name"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("decoding claims: %w", err)
	}
	identity := Identity{Subject: idToken.Subject, Email: claims.Email, Name: claims.Name}
	if identity.Name == "" {
		identity.Name = claims.PreferredUsername
	}
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		slog.Debug("OIDC login", "subject", identity.Subject, "email", identity.Email)
	}
	return identity, nil
}
