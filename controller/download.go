package controller

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"OpenCargoRegistry/models"
	"OpenCargoRegistry/storage"
)

// DownloadAction redirects to the tarball of a version, or streams it when
// the registry is configured to. Yanked versions carry `X-Yanked: 1`.
func (c *Controller) DownloadAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Download", r)

	download, err := c.registry.Download(r.Context(), r.PathValue("name"), r.PathValue("version"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	if download.Yanked {
		w.Header().Set("X-Yanked", "1")
	}
	if download.Body == nil {
		http.Redirect(w, r, download.URL, http.StatusFound)
		return
	}
	defer download.Body.Close()
	writeCrate(w, r.PathValue("name"), r.PathValue("version"), download.Body)
}

// BlobAction streams a stored tarball. It is the redirect target of
// backends that cannot hand out URLs of their own.
func (c *Controller) BlobAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Blob", r)

	body, err := c.registry.Blob(r.Context(), r.PathValue("name"), r.PathValue("version"))
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	defer body.Close()
	writeCrate(w, r.PathValue("name"), r.PathValue("version"), body)
}

func writeCrate(w http.ResponseWriter, name string, version string, body io.Reader) {
	header := w.Header()
	header.Set("Content-Type", storage.CrateContentType)
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s-%s.crate\"", models.CanonicalName(name), version))
	header.Set("Cache-Control", "public, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		slog.Error("Error writing response:", "error", err)
	}
}
