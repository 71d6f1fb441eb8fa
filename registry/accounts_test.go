package registry

import (
	"context"
	"testing"
	"time"

	"OpenCargoRegistry/authenticator"
	"OpenCargoRegistry/config"
)

func Test_Register_NewAuthor_ReturnsUsableToken(t *testing.T) {
	tr := newTestRegistry(t)

	token, err := tr.Register(context.Background(), "ada@example.com", "Ada", "s3cret")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	author, err := authenticator.NewDBAuthenticator(tr.db).AuthenticateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("expected the token to authenticate, got %v", err)
	}
	if author.Email != "ada@example.com" || author.Name != "Ada" {
		t.Errorf("unexpected author %+v", author)
	}
}

func Test_Register_Errors_ReturnKinds(t *testing.T) {
	tr := newTestRegistry(t)
	if _, err := tr.Register(context.Background(), "ada@example.com", "Ada", "s3cret"); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}

	_, err := tr.Register(context.Background(), "ada@example.com", "Ada again", "other")
	expectKind(t, err, KindConflict)
	_, err = tr.Register(context.Background(), "not-an-email", "Ada", "s3cret")
	expectKind(t, err, KindInvalidRequest)
	_, err = tr.Register(context.Background(), "bob@example.com", "Bob", "")
	expectKind(t, err, KindInvalidRequest)
}

func Test_Register_Disabled_ReturnsForbidden(t *testing.T) {
	tr := newTestRegistry(t, func(cfg *config.ServerRoot) {
		cfg.Auth.Registration = false
	})

	_, err := tr.Register(context.Background(), "ada@example.com", "Ada", "s3cret")
	expectKind(t, err, KindForbidden)
}

func Test_Login_CorrectPassword_ReplacesTokenAndStartsSession(t *testing.T) {
	tr := newTestRegistry(t)
	auth := authenticator.NewDBAuthenticator(tr.db)
	first, err := tr.Register(context.Background(), "ada@example.com", "Ada", "s3cret")
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	login, err := tr.Login(context.Background(), "ada@example.com", "s3cret")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if _, err := auth.AuthenticateToken(context.Background(), first); err == nil {
		t.Errorf("expected the registration token to be replaced")
	}
	if _, err := auth.AuthenticateToken(context.Background(), login.Token); err != nil {
		t.Errorf("expected the login token to authenticate, got %v", err)
	}
	if !login.Session.Expires.Equal(testNow.Add(24 * time.Hour)) {
		t.Errorf("unexpected session expiry %v", login.Session.Expires)
	}
	if _, err := auth.AuthenticateSession(context.Background(), login.Session.ID); err != nil {
		t.Errorf("expected the session to authenticate, got %v", err)
	}

	if err := tr.Logout(context.Background(), login.Session.ID); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := auth.AuthenticateSession(context.Background(), login.Session.ID); err == nil {
		t.Errorf("expected the session to end on logout")
	}
}

func Test_Login_WrongCredentials_ReturnsUnauthorized(t *testing.T) {
	tr := newTestRegistry(t)
	if _, err := tr.Register(context.Background(), "ada@example.com", "Ada", "s3cret"); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	_, err := tr.Login(context.Background(), "ada@example.com", "wrong")
	expectKind(t, err, KindUnauthorized)
	_, err = tr.Login(context.Background(), "nobody@example.com", "s3cret")
	expectKind(t, err, KindUnauthorized)
	if DetailOf(err) != "invalid email/password combination" {
		t.Errorf("unexpected detail %q", DetailOf(err))
	}
}

func Test_LoginExternal_UnknownIdentity_RegistersAuthor(t *testing.T) {
	tr := newTestRegistry(t)

	login, err := tr.LoginExternal(context.Background(), authenticator.Identity{Subject: "sub-1", Email: "ada@example.com", Name: "Ada"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	author, err := authenticator.NewDBAuthenticator(tr.db).AuthenticateToken(context.Background(), login.Token)
	if err != nil {
		t.Fatalf("expected the token to authenticate, got %v", err)
	}
	if author.ExternalID != "sub-1" || author.Name != "Ada" {
		t.Errorf("unexpected author %+v", author)
	}

	again, err := tr.LoginExternal(context.Background(), authenticator.Identity{Subject: "sub-1", Email: "changed@example.com"})
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if again.Session.AuthorID != author.ID {
		t.Errorf("expected the same author on the second login")
	}
}

func Test_LoginExternal_ExistingEmail_BindsIdentity(t *testing.T) {
	tr := newTestRegistry(t)
	ada := tr.author(t, "ada@example.com")

	login, err := tr.LoginExternal(context.Background(), authenticator.Identity{Subject: "sub-1", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if login.Session.AuthorID != ada.ID {
		t.Errorf("expected the existing author to be bound")
	}
}

func Test_LoginExternal_RegistrationDisabled_ReturnsForbidden(t *testing.T) {
	tr := newTestRegistry(t, func(cfg *config.ServerRoot) {
		cfg.Auth.Registration = false
	})

	_, err := tr.LoginExternal(context.Background(), authenticator.Identity{Subject: "sub-1", Email: "ada@example.com"})
	expectKind(t, err, KindForbidden)
	_, err = tr.LoginExternal(context.Background(), authenticator.Identity{})
	expectKind(t, err, KindUnauthorized)
}

func Test_Tokens_CreateListRevoke(t *testing.T) {
	tr := newTestRegistry(t)
	ada := tr.author(t, "ada@example.com")
	auth := authenticator.NewDBAuthenticator(tr.db)

	token, err := tr.CreateToken(context.Background(), ada, "ci")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, err := auth.AuthenticateToken(context.Background(), "Bearer "+token); err != nil {
		t.Errorf("expected the token to authenticate, got %v", err)
	}
	_, err = tr.CreateToken(context.Background(), ada, "ci")
	expectKind(t, err, KindConflict)

	tokens, err := tr.Tokens(context.Background(), ada)
	if err != nil || len(tokens) != 1 || tokens[0].Name != "ci" {
		t.Errorf("expected the ci token, got %v (%v)", tokens, err)
	}

	if err := tr.RevokeToken(context.Background(), ada, "ci"); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if _, err := auth.AuthenticateToken(context.Background(), token); err == nil {
		t.Errorf("expected the revoked token to be rejected")
	}
	expectKind(t, tr.RevokeToken(context.Background(), ada, "ci"), KindNotFound)
}
