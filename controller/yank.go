package controller

import (
	"net/http"
)

// YankAction handles `cargo yank`.
func (c *Controller) YankAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Yank", r)
	c.setYanked(w, r, true)
}

// UnyankAction handles `cargo yank --undo`.
func (c *Controller) UnyankAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Unyank", r)
	c.setYanked(w, r, false)
}

func (c *Controller) setYanked(w http.ResponseWriter, r *http.Request, yanked bool) {
	author, ok := currentAuthor(w, r)
	if !ok {
		return
	}
	var err error
	if yanked {
		err = c.registry.Yank(r.Context(), author, r.PathValue("name"), r.PathValue("version"))
	} else {
		err = c.registry.Unyank(r.Context(), author, r.PathValue("name"), r.PathValue("version"))
	}
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOk(w, "")
}
