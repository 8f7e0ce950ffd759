// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package idp

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bureau-foundation/webcli/lib/clock"
	"github.com/bureau-foundation/webcli/lib/credential"
	"github.com/bureau-foundation/webcli/lib/netutil"
)

// Google endpoints.
const (
	GoogleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	GoogleTokenURL    = "https://oauth2.googleapis.com/token"
	GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// StateCookieName is the cookie carrying the sealed login state.
const StateCookieName = "webcli_oauth_state"

// StateTTL bounds how long a user may take on the consent screen.
const StateTTL = 10 * time.Minute

var scopes = []string{"openid", "profile", "email"}

// ErrExchange wraps failures talking to the provider.
var ErrExchange = errors.New("idp: code exchange failed")

// Config configures a Provider.
type Config struct {
	ClientID     string
	ClientSecret string

	// RedirectURL is the callback URL registered with the provider.
	RedirectURL string

	// StateKey seals the state cookie (32 bytes).
	StateKey []byte

	// Endpoint overrides, for tests. Empty selects Google.
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// HTTPClient defaults to a client with a 15 second timeout.
	HTTPClient *http.Client

	Clock clock.Clock
}

// Provider runs the authorization-code flow against one OAuth client.
type Provider struct {
	clientID     string
	clientSecret string
	redirectURL  string
	authURL      string
	tokenURL     string
	userInfoURL  string
	secureCookie bool
	httpClient   *http.Client
	clock        clock.Clock
	sealer       *sealer
}

// New validates config and returns a Provider.
func New(config Config) (*Provider, error) {
	if config.ClientID == "" || config.ClientSecret == "" {
		return nil, errors.New("idp: client id and secret are required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("idp: redirect URL is required")
	}
	sealer, err := newSealer(config.StateKey)
	if err != nil {
		return nil, err
	}

	provider := &Provider{
		clientID:     config.ClientID,
		clientSecret: config.ClientSecret,
		redirectURL:  config.RedirectURL,
		authURL:      orDefault(config.AuthURL, GoogleAuthURL),
		tokenURL:     orDefault(config.TokenURL, GoogleTokenURL),
		userInfoURL:  orDefault(config.UserInfoURL, GoogleUserInfoURL),
		secureCookie: strings.HasPrefix(config.RedirectURL, "https://"),
		httpClient:   config.HTTPClient,
		clock:        config.Clock,
		sealer:       sealer,
	}
	if provider.httpClient == nil {
		provider.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if provider.clock == nil {
		provider.clock = clock.Real()
	}
	return provider, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// Begin returns the provider authorization URL and the cookie that
// must be set on the redirect response.
func (p *Provider) Begin() (string, *http.Cookie, error) {
	state, err := randomToken(16)
	if err != nil {
		return "", nil, fmt.Errorf("idp: generating state: %w", err)
	}
	verifier, err := randomToken(32)
	if err != nil {
		return "", nil, fmt.Errorf("idp: generating verifier: %w", err)
	}

	expires := p.clock.Now().Add(StateTTL)
	sealed, err := p.sealer.seal(loginState{
		State:     state,
		Verifier:  verifier,
		ExpiresAt: expires.Unix(),
	})
	if err != nil {
		return "", nil, err
	}

	query := url.Values{}
	query.Set("client_id", p.clientID)
	query.Set("redirect_uri", p.redirectURL)
	query.Set("response_type", "code")
	query.Set("scope", strings.Join(scopes, " "))
	query.Set("state", state)
	query.Set("code_challenge", challenge(verifier))
	query.Set("code_challenge_method", "S256")
	query.Set("prompt", "select_account")

	cookie := &http.Cookie{
		Name:     StateCookieName,
		Value:    sealed,
		Path:     "/auth/",
		MaxAge:   int(StateTTL / time.Second),
		HttpOnly: true,
		Secure:   p.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
	return p.authURL + "?" + query.Encode(), cookie, nil
}

// ClearCookie returns a cookie that deletes the state cookie.
func (p *Provider) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/auth/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.secureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

// Complete validates the callback request and returns the signed-in
// user's identity.
func (p *Provider) Complete(ctx context.Context, request *http.Request) (credential.Identity, error) {
	query := request.URL.Query()
	if providerError := query.Get("error"); providerError != "" {
		return credential.Identity{}, fmt.Errorf("%w: provider returned %q", ErrExchange, providerError)
	}

	cookie, err := request.Cookie(StateCookieName)
	if err != nil {
		return credential.Identity{}, fmt.Errorf("%w: no state cookie", ErrStateMismatch)
	}
	state, err := p.sealer.open(cookie.Value, p.clock.Now())
	if err != nil {
		return credential.Identity{}, err
	}
	if query.Get("state") == "" || query.Get("state") != state.State {
		return credential.Identity{}, fmt.Errorf("%w: state parameter does not match", ErrStateMismatch)
	}

	code := query.Get("code")
	if code == "" {
		return credential.Identity{}, fmt.Errorf("%w: no authorization code", ErrExchange)
	}

	accessToken, err := p.exchange(ctx, code, state.Verifier)
	if err != nil {
		return credential.Identity{}, err
	}
	return p.userInfo(ctx, accessToken)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	IDToken     string `json:"id_token"`
}

func (p *Provider) exchange(ctx context.Context, code, verifier string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.redirectURL)
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	form.Set("code_verifier", verifier)

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.Header.Set("Accept", "application/json")

	response, err := p.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExchange, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned %d: %s",
			ErrExchange, response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var token tokenResponse
	if err := netutil.DecodeResponse(response.Body, &token); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %v", ErrExchange, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: token response has no access_token", ErrExchange)
	}
	return token.AccessToken, nil
}

type userInfoResponse struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (p *Provider) userInfo(ctx context.Context, accessToken string) (credential.Identity, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return credential.Identity{}, err
	}
	request.Header.Set("Authorization", "Bearer "+accessToken)
	request.Header.Set("Accept", "application/json")

	response, err := p.httpClient.Do(request)
	if err != nil {
		return credential.Identity{}, fmt.Errorf("%w: userinfo: %v", ErrExchange, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return credential.Identity{}, fmt.Errorf("%w: userinfo returned %d: %s",
			ErrExchange, response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var profile userInfoResponse
	if err := netutil.DecodeResponse(response.Body, &profile); err != nil {
		return credential.Identity{}, fmt.Errorf("%w: decoding userinfo: %v", ErrExchange, err)
	}
	if profile.Subject == "" {
		return credential.Identity{}, fmt.Errorf("%w: userinfo has no subject", ErrExchange)
	}
	return credential.Identity{
		ID:      profile.Subject,
		Email:   profile.Email,
		Name:    profile.Name,
		Picture: profile.Picture,
	}, nil
}

// challenge is the PKCE S256 transform of verifier.
func challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
