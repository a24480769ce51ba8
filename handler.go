package main

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"classics-portal/internal/logger"
	"classics-portal/internal/types"
)

// storagePrefix is the asset-server path documents are proxied under
const storagePrefix = "/storage/documents/"

// StorageHandler serves document files to the frontend through the API
// client, so the PDF widget reads them from the app's own origin
type StorageHandler struct {
	app *App
}

func (h *StorageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, storagePrefix) || h.app.client == nil {
		http.NotFound(w, r)
		return
	}

	title, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), storagePrefix))
	if err != nil || title == "" || strings.Contains(title, "/") {
		http.Error(w, "invalid document title", http.StatusBadRequest)
		return
	}

	data, err := h.app.client.FetchDocumentFile(r.Context(), title)
	if err != nil {
		logger.Warn("failed to proxy document file", logger.String("title", title), logger.Err(err))
		status := http.StatusBadGateway
		if types.HasCode(err, types.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	contentType := http.DetectContentType(data)
	if types.IsPDFTitle(title) {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}
