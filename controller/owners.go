package controller

import (
	"net/http"

	"OpenCargoRegistry/responses"
)

// OwnersAction lists the owners of a crate.
func (c *Controller) OwnersAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Owners", r)

	owners, err := c.registry.Owners(r.Context(), r.PathValue("name"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	body := responses.Users{Users: make([]responses.User, 0, len(owners))}
	for _, owner := range owners {
		body.Users = append(body.Users, responses.User{ID: owner.ID, Login: owner.Email, Name: owner.Name})
	}
	writeJSON(w, http.StatusOK, body)
}

// AddOwnersAction handles `cargo owner --add`.
func (c *Controller) AddOwnersAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("AddOwners", r)

	author, ok := currentAuthor(w, r)
	if !ok {
		return
	}
	var request responses.OwnersRequest
	if !decodeBody(w, r, &request) {
		return
	}
	msg, err := c.registry.AddOwners(r.Context(), author, r.PathValue("name"), request.Users)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOk(w, msg)
}

// RemoveOwnersAction handles `cargo owner --remove`.
func (c *Controller) RemoveOwnersAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("RemoveOwners", r)

	author, ok := currentAuthor(w, r)
	if !ok {
		return
	}
	var request responses.OwnersRequest
	if !decodeBody(w, r, &request) {
		return
	}
	msg, err := c.registry.RemoveOwners(r.Context(), author, r.PathValue("name"), request.Users)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeOk(w, msg)
}
