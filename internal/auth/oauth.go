package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// Identity is the verified tuple produced by the OAuth provider.
type Identity struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	Image             string `json:"image"`
	Provider          string `json:"provider"`
	ProviderAccountID string `json:"providerAccountId"`
}

// OAuthConfig holds the provider settings.
type OAuthConfig struct {
	Provider     string   `mapstructure:"provider"` // currently: google
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	AuthURL      string   `mapstructure:"auth_url"`
	TokenURL     string   `mapstructure:"token_url"`
	UserInfoURL  string   `mapstructure:"userinfo_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// OAuthProvider drives the sign-in flow against an OAuth2/OIDC identity
// provider.
type OAuthProvider struct {
	config      OAuthConfig
	oauthConfig *oauth2.Config
}

// NewOAuthProvider creates a provider, applying the preset for known
// provider names.
func NewOAuthProvider(cfg OAuthConfig) *OAuthProvider {
	cfg = applyPreset(cfg)

	return &OAuthProvider{
		config: cfg,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			Scopes:      cfg.Scopes,
			RedirectURL: cfg.RedirectURL,
		},
	}
}

// Enabled reports whether the provider is configured.
func (p *OAuthProvider) Enabled() bool {
	return p.config.ClientID != "" && p.config.ClientSecret != ""
}

// GetAuthURL builds the provider redirect URL for the given state.
func (p *OAuthProvider) GetAuthURL(state string) string {
	return p.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeCode trades an authorization code for a verified identity.
func (p *OAuthProvider) ExchangeCode(ctx context.Context, code string) (*Identity, *oauth2.Token, error) {
	token, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	client := p.oauthConfig.Client(ctx, token)
	identity, err := p.fetchUserInfo(client)
	if err != nil {
		return nil, nil, err
	}
	return identity, token, nil
}

// fetchUserInfo retrieves the identity claims from the provider's
// userinfo endpoint.
func (p *OAuthProvider) fetchUserInfo(client *http.Client) (*Identity, error) {
	if p.config.UserInfoURL == "" {
		return nil, fmt.Errorf("userinfo_url is not configured")
	}

	resp, err := client.Get(p.config.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("userinfo request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var claims struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse userinfo response: %w", err)
	}

	if claims.Email == "" {
		return nil, fmt.Errorf("identity provider returned no email")
	}

	accountID := claims.Sub
	if accountID == "" {
		accountID = claims.Email
	}

	return &Identity{
		Email:             claims.Email,
		Name:              claims.Name,
		Image:             claims.Picture,
		Provider:          p.config.Provider,
		ProviderAccountID: accountID,
	}, nil
}

// applyPreset fills in default URLs and scopes for known providers.
func applyPreset(cfg OAuthConfig) OAuthConfig {
	switch cfg.Provider {
	case "google", "":
		if cfg.Provider == "" {
			cfg.Provider = "google"
		}
		if cfg.AuthURL == "" {
			cfg.AuthURL = "https://accounts.google.com/o/oauth2/v2/auth"
		}
		if cfg.TokenURL == "" {
			cfg.TokenURL = "https://oauth2.googleapis.com/token"
		}
		if cfg.UserInfoURL == "" {
			cfg.UserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
		}
		if len(cfg.Scopes) == 0 {
			cfg.Scopes = []string{"openid", "profile", "email"}
		}
	}
	return cfg
}
