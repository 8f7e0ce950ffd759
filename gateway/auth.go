// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bureau-foundation/webcli/lib/credential"
	"github.com/bureau-foundation/webcli/lib/idp"
)

func (s *Server) loginEnabled() bool {
	return s.provider != nil && s.issuer != nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.loginEnabled() {
		http.Error(w, "Google login is not configured.", http.StatusServiceUnavailable)
		return
	}
	target, cookie, err := s.provider.Begin()
	if err != nil {
		s.logger.Error("starting google login", "error", err)
		http.Error(w, "Failed to start login.", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, cookie)
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if !s.loginEnabled() {
		http.Error(w, "Google login is not configured.", http.StatusServiceUnavailable)
		return
	}
	if r.URL.Query().Get("code") == "" && r.URL.Query().Get("error") == "" {
		http.Error(w, "Authorization code not found.", http.StatusBadRequest)
		return
	}

	identity, err := s.provider.Complete(r.Context(), r)
	http.SetCookie(w, s.provider.ClearCookie())
	if err != nil {
		s.logger.Warn("google login failed", "error", err)
		if errors.Is(err, idp.ErrStateMismatch) || errors.Is(err, idp.ErrStateExpired) {
			http.Error(w, "Login session expired or invalid. Please try again.", http.StatusBadRequest)
			return
		}
		http.Error(w, "Failed to authenticate with Google.", http.StatusBadGateway)
		return
	}

	raw, claims, err := s.issuer.Mint(identity)
	if err != nil {
		s.logger.Error("minting credential", "error", err, "user_id", identity.ID)
		http.Error(w, "Failed to issue credential.", http.StatusInternalServerError)
		return
	}
	target, err := loginRedirect(s.frontendURL, raw, identity)
	if err != nil {
		s.logger.Error("building login redirect", "error", err)
		http.Error(w, "Failed to issue credential.", http.StatusInternalServerError)
		return
	}

	s.logger.Info("credential issued",
		"user_id", identity.ID,
		"email", identity.Email,
		"credential_id", claims.ID,
		"expires_at", claims.ExpiryTime(),
	)
	http.Redirect(w, r, target, http.StatusFound)
}

// loginRedirect appends the credential and the user's profile to the
// frontend URL's query string.
func loginRedirect(frontendURL, raw string, identity credential.Identity) (string, error) {
	target, err := url.Parse(frontendURL)
	if err != nil {
		return "", fmt.Errorf("parsing frontend URL %q: %w", frontendURL, err)
	}
	query := target.Query()
	query.Set("token", raw)
	query.Set("userId", identity.ID)
	query.Set("userName", identity.Name)
	query.Set("userEmail", identity.Email)
	target.RawQuery = query.Encode()
	return target.String(), nil
}

// handleLogout revokes the bearer credential until its natural expiry.
// Connections already established with it stay open.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.blacklist == nil {
		http.Error(w, "Credential revocation is not enabled.", http.StatusNotImplemented)
		return
	}
	raw := bearerCredential(r)
	if raw == "" {
		http.Error(w, messageNoCredential, http.StatusUnauthorized)
		return
	}
	claims, err := s.validator.Claims(raw)
	if err != nil {
		http.Error(w, messageInvalidCredential, http.StatusUnauthorized)
		return
	}

	s.blacklist.Revoke(claims.ID, claims.ExpiryTime())
	s.logger.Info("credential revoked", "credential_id", claims.ID, "user_id", claims.Subject)
	w.WriteHeader(http.StatusNoContent)
}
