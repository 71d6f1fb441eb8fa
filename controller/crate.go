package controller

import (
	"io"
	"log/slog"
	"net/http"

	"OpenCargoRegistry/models"
	"OpenCargoRegistry/responses"
	"OpenCargoRegistry/storage"
)

// CrateAction returns the details of a crate with all its versions.
func (c *Controller) CrateAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Crate", r)

	details, err := c.registry.Crate(r.Context(), r.PathValue("name"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	crate := details.Crate
	info := responses.CrateInfo{
		Name:          crate.Name,
		Description:   crate.Description,
		Repository:    crate.Repository,
		Documentation: crate.Documentation,
		Downloads:     crate.Downloads,
		CreatedAt:     formatTime(crate.CreatedAt),
		UpdatedAt:     formatTime(crate.UpdatedAt),
		Keywords:      nonNil(details.Keywords),
		Categories:    nonNil(details.Categories),
		Badges:        details.Badges,
		Versions:      make([]responses.CrateVersion, 0, len(details.Versions)),
	}
	if info.Badges == nil {
		info.Badges = []models.Badge{}
	}
	for _, version := range details.Versions {
		info.Versions = append(info.Versions, responses.CrateVersion{Num: version.Vers, Yanked: version.Yanked, Cksum: version.Cksum})
	}
	writeJSON(w, http.StatusOK, responses.Crate{Crate: info})
}

// ReadmeAction serves the rendered README of a version.
func (c *Controller) ReadmeAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Readme", r)

	body, err := c.registry.Readme(r.Context(), r.PathValue("name"), r.PathValue("version"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	defer body.Close()

	header := w.Header()
	header.Set("Content-Type", storage.ReadmeContentType)
	header.Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Error("Error writing response:", "error", err)
	}
}

// CategoriesAction lists the category catalogue.
func (c *Controller) CategoriesAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Categories", r)

	categories, err := c.registry.Categories(r.Context())
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	body := responses.Categories{Categories: make([]responses.Category, 0, len(categories))}
	for _, category := range categories {
		body.Categories = append(body.Categories, responses.Category{
			Tag:         category.Tag,
			Name:        category.Name,
			Description: category.Description,
		})
	}
	writeJSON(w, http.StatusOK, body)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
