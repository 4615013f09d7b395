package sessions

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"retouch-server/core"
	"retouch-server/editor"
	"retouch-server/middleware"
	"retouch-server/raster"
	"retouch-server/session"
)

// sessionFromRequest resolves the caller's session. Requests that did not pass
// through the session middleware get a 400.
func sessionFromRequest(w http.ResponseWriter, r *http.Request, manager *session.Manager) (*session.Session, bool) {
	id := middleware.SessionID(r.Context())
	if id == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "Session not found"})
		return nil, false
	}
	return manager.GetSession(id), true
}

// HandleGetState returns the session snapshot: history position, mask
// presence, in-flight flag and the instruction log.
func HandleGetState(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(w, r, manager)
		if !ok {
			return
		}
		render.JSON(w, r, sess.Snapshot())
	}
}

// HandleUploadImage accepts a new source image, either as a multipart "image"
// part or as the raw request body, and makes it the sole history entry.
func HandleUploadImage(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(w, r, manager)
		if !ok {
			return
		}

		data, err := readImageBody(r)
		if err != nil {
			logrus.WithField("error", err).Error("Failed to read upload body")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to read request body"})
			return
		}

		img, err := sess.UploadImage(data)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"error": err,
				"bytes": len(data),
			}).Warn("Rejected uploaded image")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "failed to load image"})
			return
		}

		render.JSON(w, r, map[string]any{
			"width":  img.Width,
			"height": img.Height,
			"state":  sess.Snapshot(),
		})
	}
}

// readImageBody pulls the image bytes out of the request, preferring a
// multipart "image" part over the raw body.
func readImageBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()

	if file, _, err := r.FormFile("image"); err == nil {
		defer file.Close()
		return io.ReadAll(file)
	}
	return io.ReadAll(r.Body)
}

// HandleGetImage serves the image at the history cursor as PNG.
func HandleGetImage(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(w, r, manager)
		if !ok {
			return
		}

		img := sess.CurrentImage()
		if img == nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "No image loaded"})
			return
		}

		w.Header().Set("Content-Type", img.MIME)
		w.Write(img.Data)
	}
}

// HandleGetThumbnail serves a small data-URL preview of the current image.
func HandleGetThumbnail(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(w, r, manager)
		if !ok {
			return
		}

		img := sess.CurrentImage()
		if img == nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "No image loaded"})
			return
		}

		thumb, err := raster.Thumbnail(*img, 256)
		if err != nil {
			logrus.WithField("error", err).Error("Failed to build thumbnail")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to build thumbnail"})
			return
		}
		render.JSON(w, r, map[string]string{"thumbnail": thumb})
	}
}

// HandleClearImage empties the history and discards the mask. The instruction
// log survives.
func HandleClearImage(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(w, r, manager)
		if !ok {
			return
		}
		sess.ClearImage()
		render.JSON(w, r, sess.Snapshot())
	}
}

// HandleSubmitEdit runs one instruction through the remote editor and, on
// success, commits the result as a new history entry.
func HandleSubmitEdit(manager *session.Manager, ed core.Editor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(w, r, manager)
		if !ok {
			return
		}

		var req struct {
			Instruction string `json:"instruction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid JSON in request body"})
			return
		}
		defer r.Body.Close()

		result, record, err := sess.Submit(r.Context(), ed, req.Instruction)
		if err != nil {
			status, msg := submitError(err)
			logrus.WithFields(logrus.Fields{
				"error":  err,
				"status": status,
			}).Warn("Edit submission rejected")
			render.Status(r, status)
			render.JSON(w, r, map[string]string{"error": msg})
			return
		}

		render.JSON(w, r, map[string]any{
			"record": record,
			"width":  result.Width,
			"height": result.Height,
			"state":  sess.Snapshot(),
		})
	}
}

// submitError maps a submission failure to an HTTP status and a client
// message.
func submitError(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrNoImage):
		return http.StatusConflict, "No image loaded"
	case errors.Is(err, session.ErrEmptyInstruction):
		return http.StatusUnprocessableEntity, "Instruction must not be blank"
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict, "An edit is already in progress"
	case errors.Is(err, session.ErrStale):
		return http.StatusConflict, "Image changed while the edit was in progress"
	case errors.Is(err, editor.ErrNotConfigured):
		return http.StatusInternalServerError, "Image editor is not configured on the server"
	case errors.Is(err, editor.ErrUnavailable),
		errors.Is(err, editor.ErrRequestFailed),
		errors.Is(err, editor.ErrEmptyResult):
		return http.StatusBadGateway, "Image edit failed"
	default:
		return http.StatusInternalServerError, "Image edit failed"
	}
}

// HandleUndo steps one version back.
func HandleUndo(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(w, r, manager)
		if !ok {
			return
		}

		if _, err := sess.Undo(); err != nil {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, map[string]string{"error": "Nothing to undo"})
			return
		}
		render.JSON(w, r, sess.Snapshot())
	}
}

// HandleRedo steps one version forward.
func HandleRedo(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(w, r, manager)
		if !ok {
			return
		}

		if _, err := sess.Redo(); err != nil {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, map[string]string{"error": "Nothing to redo"})
			return
		}
		render.JSON(w, r, sess.Snapshot())
	}
}

// HandleSetMask installs a finished mask for the current image. The body is
// the mask image itself; anything decodable is normalized to PNG.
func HandleSetMask(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(w, r, manager)
		if !ok {
			return
		}

		data, err := io.ReadAll(r.Body)
		if err != nil {
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to read request body"})
			return
		}
		defer r.Body.Close()

		mask, err := raster.Normalize(data)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "failed to load image"})
			return
		}

		if err := sess.SetMask(&mask); err != nil {
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, map[string]string{"error": "No image loaded"})
			return
		}
		render.JSON(w, r, sess.Snapshot())
	}
}

// HandleGetMask serves the current mask as PNG, 404 when absent.
func HandleGetMask(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(w, r, manager)
		if !ok {
			return
		}

		mask := sess.Mask()
		if mask == nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "No mask present"})
			return
		}

		w.Header().Set("Content-Type", mask.MIME)
		w.Write(mask.Data)
	}
}

// HandleClearMask wipes the overlay and sets the mask absent.
func HandleClearMask(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(w, r, manager)
		if !ok {
			return
		}
		sess.ClearMask()
		render.JSON(w, r, sess.Snapshot())
	}
}

// HandleGetLog returns the instruction log on its own.
func HandleGetLog(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromRequest(w, r, manager)
		if !ok {
			return
		}
		render.JSON(w, r, sess.EditLog())
	}
}
