package controller

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"OpenCargoRegistry/index"
	"OpenCargoRegistry/models"
)

// sparseEntry caches the etag of an index file until the file changes.
type sparseEntry struct {
	modTime time.Time
	size    int64
	etag    string
}

// SparseAction serves index files, and config.json, over the sparse protocol.
func (c *Controller) SparseAction(w http.ResponseWriter, r *http.Request) {
	printCallInfo("Sparse", r)

	p, ok := index.ResolveRequestPath(r.PathValue("path"))
	if !ok {
		writeErrorWithStatusCode("Not found", w, http.StatusNotFound)
		return
	}
	data, info, err := c.sparse.ReadFile(p)
	if os.IsNotExist(err) {
		writeErrorWithStatusCode("Not found", w, http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error reading index file:", "path", p, "error", err.Error())
		writeErrorWithStatusCode("error reading the index", w, http.StatusInternalServerError)
		return
	}

	etag := c.etag(p, info, data)
	modTime := info.ModTime().UTC().Truncate(time.Second)
	header := w.Header()
	header.Set("ETag", `"`+etag+`"`)
	header.Set("Last-Modified", modTime.Format(http.TimeFormat))
	header.Set("Cache-Control", "public, max-age=60")

	if notModified(r, etag, modTime) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	contentType := "text/plain; charset=utf-8"
	if p == index.ConfigFile {
		contentType = "application/json"
	}
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("Error writing response:", "error", err.Error())
	}
}

func (c *Controller) etag(p string, info os.FileInfo, data []byte) string {
	if cached, ok := c.etags.Get(p); ok && cached.modTime.Equal(info.ModTime()) && cached.size == info.Size() {
		return cached.etag
	}
	entry := sparseEntry{modTime: info.ModTime(), size: info.Size(), etag: models.Checksum(data)}
	c.etags.Add(p, entry)
	return entry.etag
}

// notModified evaluates If-None-Match, falling back to If-Modified-Since
// when the client sent no etag.
func notModified(r *http.Request, etag string, modTime time.Time) bool {
	if match := r.Header.Get("If-None-Match"); match != "" {
		for _, candidate := range strings.Split(match, ",") {
			candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
			if candidate == "*" || strings.Trim(candidate, `"`) == etag {
				return true
			}
		}
		return false
	}
	if since := r.Header.Get("If-Modified-Since"); since != "" {
		t, err := http.ParseTime(since)
		return err == nil && !modTime.After(t)
	}
	return false
}
