package handler

import (
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/insignia/internal/service"
)

// ExportHandler issues and serves one-time user exports.
type ExportHandler struct {
	exports *service.ExportService
	logger  *slog.Logger
}

// NewExportHandler creates an ExportHandler.
func NewExportHandler(exports *service.ExportService, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{exports: exports, logger: logger}
}

// HandleExport snapshots all users and returns a one-time download URL.
//
// HTTP: POST /api/export_users
// RESPONSE: {"download_url": "https://host/download/<token>"}
func (h *ExportHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	url, err := h.exports.Export(r.Context())
	if err != nil {
		h.logger.Error("export failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"download_url": url})
}

// HandleDownload streams an export as a CSV attachment. The file is gone
// afterwards; a second request for the same token gets 404.
//
// HTTP: GET /download/{token}
func (h *ExportHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	file, err := h.exports.Download(chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			h.logger.Warn("removing downloaded export failed", slog.String("error", err.Error()))
		}
	}()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": service.ExportFileName,
	}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, file); err != nil {
		h.logger.Warn("streaming export failed", slog.String("error", err.Error()))
	}
}
