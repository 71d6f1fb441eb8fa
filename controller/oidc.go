package controller

import (
	"log/slog"
	"net/http"
	"time"

	"OpenCargoRegistry/utils"
)

const (
	stateCookie = "oidc_state"
	nonceCookie = "oidc_nonce"
)

// OIDCLoginAction redirects to the identity provider.
func (c *Controller) OIDCLoginAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("OIDCLogin", r)

	if c.oidc == nil {
		writeErrorWithStatusCode("external login is not configured", w, http.StatusNotFound)
		return
	}
	state, err := utils.RandomString(16)
	if err != nil {
		slog.Error("Error creating state:", "error", err)
		writeErrorWithStatusCode("login failed", w, http.StatusInternalServerError)
		return
	}
	nonce, err := utils.RandomString(16)
	if err != nil {
		slog.Error("Error creating nonce:", "error", err)
		writeErrorWithStatusCode("login failed", w, http.StatusInternalServerError)
		return
	}
	setCallbackCookie(w, r, stateCookie, state)
	setCallbackCookie(w, r, nonceCookie, nonce)

	http.Redirect(w, r, c.oidc.AuthCodeURL(state, nonce), http.StatusFound)
}

// OIDCCallbackAction completes the authorization code flow, binds the
// identity to an author and logs it in.
func (c *Controller) OIDCCallbackAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("OIDCCallback", r)

	if c.oidc == nil {
		writeErrorWithStatusCode("external login is not configured", w, http.StatusNotFound)
		return
	}
	state, err := r.Cookie(stateCookie)
	if err != nil {
		slog.Error("Error getting state cookie:", "error", err)
		writeErrorWithStatusCode("state not found", w, http.StatusUnauthorized)
		return
	}
	if r.URL.Query().Get("state") != state.Value {
		slog.Error("State did not match")
		writeErrorWithStatusCode("state did not match", w, http.StatusUnauthorized)
		return
	}
	nonce, err := r.Cookie(nonceCookie)
	if err != nil {
		slog.Error("Error getting nonce cookie:", "error", err)
		writeErrorWithStatusCode("nonce not found", w, http.StatusUnauthorized)
		return
	}

	identity, err := c.oidc.Exchange(r.Context(), r.URL.Query().Get("code"), nonce.Value)
	if err != nil {
		slog.Error("Error exchanging code:", "error", err)
		writeErrorWithStatusCode("authentication callback failed", w, http.StatusUnauthorized)
		return
	}
	login, err := c.registry.LoginExternal(r.Context(), identity)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	clearCallbackCookie(w, r, stateCookie)
	clearCallbackCookie(w, r, nonceCookie)
	c.startSession(w, r, login)
}

func setCallbackCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(time.Hour.Seconds()),
		Secure:   r.TLS != nil,
		HttpOnly: true,
	})
}

func clearCallbackCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Path:     "/",
		MaxAge:   -1,
		Secure:   r.TLS != nil,
		HttpOnly: true,
	})
}
