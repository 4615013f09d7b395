package exports

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"retouch-server/core"
	"retouch-server/middleware"
	"retouch-server/raster"
	"retouch-server/session"
)

// HandleCreateExport saves the image at the history cursor to the export
// store and returns its id and generated filename.
func HandleCreateExport(manager *session.Manager, store core.ExportStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := middleware.SessionID(r.Context())
		if sessionID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Session not found"})
			return
		}

		img := manager.GetSession(sessionID).CurrentImage()
		if img == nil {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, map[string]string{"error": "No image loaded"})
			return
		}

		export := &core.Export{
			SessionID: sessionID,
			Filename:  raster.ExportFilename(time.Now()),
			Size:      int64(len(img.Data)),
			CreatedAt: time.Now(),
			Data:      img.Data,
		}
		id, err := store.Create(r.Context(), export)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":     err,
				"sessionID": sessionID,
			}).Error("Failed to create export")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to create export"})
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]string{
			"id":       id,
			"filename": export.Filename,
		})
	}
}

// HandleListExports returns the session's exports, newest first, without
// payloads.
func HandleListExports(store core.ExportStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := middleware.SessionID(r.Context())
		if sessionID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Session not found"})
			return
		}

		exports, err := store.List(r.Context(), sessionID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":     err,
				"sessionID": sessionID,
			}).Error("Failed to list exports")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to list exports"})
			return
		}

		if exports == nil {
			exports = []*core.Export{}
		}
		render.JSON(w, r, exports)
	}
}

// HandleDownloadExport streams a stored export as a PNG attachment.
func HandleDownloadExport(store core.ExportStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := middleware.SessionID(r.Context())
		if sessionID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Session not found"})
			return
		}

		id := chi.URLParam(r, "id")
		if id == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Export id is required"})
			return
		}

		export, err := store.Get(r.Context(), sessionID, id)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error":     err,
				"sessionID": sessionID,
				"id":        id,
			}).Warn("Failed to get export")
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Export not found"})
			return
		}

		w.Header().Set("Content-Type", core.CanonicalMIME)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
		w.Write(export.Data)
	}
}
