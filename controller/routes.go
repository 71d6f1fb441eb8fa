package controller

import (
	"net/http"

	"OpenCargoRegistry/middleware"
)

// Register adds every route of the registry API to the router behind auth.
// Login attempts go through limiter.
func (c *Controller) Register(router *http.ServeMux, auth *middleware.Authentication, limiter *middleware.RateLimiter) {
	router.HandleFunc("GET /{$}", c.MainAction)
	router.HandleFunc("/", c.NotFoundAction)

	auth.HandleFunc("PUT /api/v1/crates/new", c.PublishAction)
	router.HandleFunc("GET /api/v1/crates", c.SearchAction)
	router.HandleFunc("GET /api/v1/crates/suggest", c.SuggestAction)
	router.HandleFunc("GET /api/v1/crates/{name}", c.CrateAction)
	router.HandleFunc("GET /api/v1/crates/{name}/{version}/download", c.DownloadAction)
	router.HandleFunc("GET /api/v1/crates/{name}/{version}/readme", c.ReadmeAction)
	// cargo sends `/yank`, the short form is kept for older clients
	auth.HandleFunc("DELETE /api/v1/crates/{name}/{version}", c.YankAction)
	auth.HandleFunc("DELETE /api/v1/crates/{name}/{version}/yank", c.YankAction)
	auth.HandleFunc("PUT /api/v1/crates/{name}/{version}/unyank", c.UnyankAction)
	router.HandleFunc("GET /api/v1/crates/{name}/owners", c.OwnersAction)
	auth.HandleFunc("PUT /api/v1/crates/{name}/owners", c.AddOwnersAction)
	auth.HandleFunc("DELETE /api/v1/crates/{name}/owners", c.RemoveOwnersAction)
	router.HandleFunc("GET /api/v1/blobs/{name}/{version}", c.BlobAction)
	router.HandleFunc("GET /api/v1/categories", c.CategoriesAction)
	router.HandleFunc("GET /api/v1/sparse/{path...}", c.SparseAction)

	router.HandleFunc("POST /api/v1/account/register", limiter.Limit(c.RegisterAction))
	router.HandleFunc("POST /api/v1/account/login", limiter.Limit(c.LoginAction))
	router.HandleFunc("POST /api/v1/account/logout", c.LogoutAction)
	auth.HandleFunc("GET /api/v1/account/tokens", c.TokensAction)
	auth.HandleFunc("PUT /api/v1/account/tokens", c.CreateTokenAction)
	auth.HandleFunc("DELETE /api/v1/account/tokens", c.RevokeTokenAction)
	router.HandleFunc("GET /api/v1/account/oidc/login", c.OIDCLoginAction)
	router.HandleFunc("GET /api/v1/account/oidc/callback", c.OIDCCallbackAction)
}
