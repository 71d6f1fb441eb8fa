package controller

import (
	"log/slog"
	"net/http"
	"time"

	"OpenCargoRegistry/registry"
	"OpenCargoRegistry/responses"
)

// SearchAction serves `cargo search`: `?q=&per_page=&page=`.
func (c *Controller) SearchAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Search", r)

	page, err := positiveParam(r, "page", 1)
	if err == nil {
		var perPage int
		perPage, err = positiveParam(r, "per_page", registry.DefaultPerPage)
		if err == nil {
			c.search(w, r, page, perPage)
			return
		}
	}
	if e := writeErrorWithStatusCode(err.Error(), w, http.StatusBadRequest); e != nil {
		slog.Error("Error writing response:", "error", e)
	}
}

func (c *Controller) search(w http.ResponseWriter, r *http.Request, page int, perPage int) {
	results, err := c.registry.Search(r.Context(), r.URL.Query().Get("q"), page, perPage)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	body := responses.Search{
		Crates: make([]responses.SearchCrate, 0, len(results.Crates)),
		Meta:   responses.SearchMeta{Total: results.Total},
	}
	for _, summary := range results.Crates {
		crate := summary.Crate
		body.Crates = append(body.Crates, responses.SearchCrate{
			Name:          crate.Name,
			MaxVersion:    summary.MaxVersion,
			Description:   crate.Description,
			Downloads:     crate.Downloads,
			CreatedAt:     formatTime(crate.CreatedAt),
			UpdatedAt:     formatTime(crate.UpdatedAt),
			Documentation: crate.Documentation,
			Repository:    crate.Repository,
		})
	}
	writeJSON(w, http.StatusOK, body)
}

// SuggestAction returns type-ahead suggestions: `?q=&limit=`.
func (c *Controller) SuggestAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Suggest", r)

	limit, err := positiveParam(r, "limit", registry.DefaultSuggestLimit)
	if err != nil {
		if e := writeErrorWithStatusCode(err.Error(), w, http.StatusBadRequest); e != nil {
			slog.Error("Error writing response:", "error", e)
		}
		return
	}
	suggestions, err := c.registry.Suggest(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	body := responses.Suggestions{Suggestions: make([]responses.Suggestion, 0, len(suggestions))}
	for _, suggestion := range suggestions {
		body.Suggestions = append(body.Suggestions, responses.Suggestion{Name: suggestion.Name, Vers: suggestion.Version})
	}
	writeJSON(w, http.StatusOK, body)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
