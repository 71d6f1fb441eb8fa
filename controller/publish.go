package controller

import (
	"net/http"

	"OpenCargoRegistry/responses"
)

// PublishAction accepts `cargo publish` uploads: the framed metadata and
// tarball in the request body.
func (c *Controller) PublishAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Publish", r)

	author, ok := currentAuthor(w, r)
	if !ok {
		return
	}
	defer r.Body.Close()

	warnings, err := c.registry.Publish(r.Context(), author, r.Body)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, responses.Publish{Warnings: warnings})
}
