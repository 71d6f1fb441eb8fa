package controller

import (
	"net/http"

	"OpenCargoRegistry/db"
	"OpenCargoRegistry/middleware"
	"OpenCargoRegistry/registry"
	"OpenCargoRegistry/responses"
)

// RegisterAction creates a password account and returns its first token.
func (c *Controller) RegisterAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Register", r)

	var request responses.RegisterRequest
	if !decodeBody(w, r, &request) {
		return
	}
	token, err := c.registry.Register(r.Context(), request.Email, request.Name, request.Passwd)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, responses.Token{Token: token})
}

// LoginAction checks a password, starts a session and returns a fresh token.
func (c *Controller) LoginAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Login", r)

	var request responses.LoginRequest
	if !decodeBody(w, r, &request) {
		return
	}
	login, err := c.registry.Login(r.Context(), request.Email, request.Passwd)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	c.startSession(w, r, login)
}

// LogoutAction ends the session of the session cookie.
func (c *Controller) LogoutAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Logout", r)

	if cookie, err := r.Cookie(middleware.SessionCookie); err == nil {
		if err := c.registry.Logout(r.Context(), cookie.Value); err != nil {
			writeRegistryError(w, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   r.TLS != nil,
		HttpOnly: true,
	})
	writeOk(w, "")
}

// TokensAction lists the names of the author's tokens.
func (c *Controller) TokensAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Tokens", r)

	author, ok := currentAuthor(w, r)
	if !ok {
		return
	}
	tokens, err := c.registry.Tokens(r.Context(), author)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	body := responses.Tokens{Tokens: make([]responses.TokenName, 0, len(tokens))}
	for _, token := range tokens {
		body.Tokens = append(body.Tokens, responses.TokenName{Name: token.Name})
	}
	writeJSON(w, http.StatusOK, body)
}

// CreateTokenAction issues a named token.
func (c *Controller) CreateTokenAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("CreateToken", r)

	c.withTokenRequest(w, r, func(author db.Author, name string) {
		token, err := c.registry.CreateToken(r.Context(), author, name)
		if err != nil {
			writeRegistryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, responses.Token{Token: token})
	})
}

// RevokeTokenAction deletes a named token.
func (c *Controller) RevokeTokenAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("RevokeToken", r)

	c.withTokenRequest(w, r, func(author db.Author, name string) {
		if err := c.registry.RevokeToken(r.Context(), author, name); err != nil {
			writeRegistryError(w, err)
			return
		}
		writeOk(w, "")
	})
}

func (c *Controller) withTokenRequest(w http.ResponseWriter, r *http.Request, fn func(author db.Author, name string)) {
	author, ok := currentAuthor(w, r)
	if !ok {
		return
	}
	var request responses.TokenRequest
	if !decodeBody(w, r, &request) {
		return
	}
	fn(author, request.Name)
}

func (c *Controller) startSession(w http.ResponseWriter, r *http.Request, login *registry.Login) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    login.Session.ID,
		Path:     "/",
		Expires:  login.Session.Expires,
		Secure:   r.TLS != nil,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, responses.Token{Token: login.Token})
}
