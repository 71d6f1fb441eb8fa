package controller

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"OpenCargoRegistry/authenticator"
	"OpenCargoRegistry/index"
	"OpenCargoRegistry/registry"
	"OpenCargoRegistry/responses"
	"OpenCargoRegistry/utils"
)

const (
	etagCacheSize = 4096
	etagCacheTTL  = 10 * time.Minute
)

// OIDCProvider is the external login flow used by the OIDC actions.
type OIDCProvider interface {
	AuthCodeURL(state string, nonce string) string
	Exchange(ctx context.Context, code string, nonce string) (authenticator.Identity, error)
}

type Controller struct {
	registry     *registry.Registry
	sparse       *index.Tree
	oidc         OIDCProvider
	etags        *utils.LRUCache[string, sparseEntry]
	timeProvider utils.TimeProvider
}

// NewController serves the registry API. sparse is the index working tree
// served by the sparse protocol; oidc may be nil when external login is
// not configured.
func NewController(reg *registry.Registry, sparse *index.Tree, oidc OIDCProvider) *Controller {
	timeProvider := utils.NewRealTimeProvider()
	return &Controller{
		registry:     reg,
		sparse:       sparse,
		oidc:         oidc,
		etags:        utils.NewLRUCache[string, sparseEntry](etagCacheSize, etagCacheTTL, timeProvider),
		timeProvider: timeProvider,
	}
}

// MainAction describes the registry: where its git and sparse indexes live.
func (c *Controller) MainAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Main", r)

	indexURL, err := c.registry.IndexURL(r.Context())
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	base := c.registry.BaseURL()
	name := c.registry.Config().General.Hostname
	if name == "" {
		if u, err := url.Parse(base); err == nil {
			name = u.Hostname()
		}
	}
	writeJSON(w, http.StatusOK, responses.Registry{
		Name:   name,
		Index:  indexURL,
		Sparse: "sparse+" + base + "/api/v1/sparse/",
	})
}

// NotFoundAction answers every route that matches nothing else.
func (c *Controller) NotFoundAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("NotFound", r)
	writeErrorWithStatusCode("Not found", w, http.StatusNotFound)
}
