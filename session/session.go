// Package session ties the editing state of one browser session together:
// the version history of the image, the mask overlay drawn over it, and the
// instruction log. The submission protocol is a deliberate three-step
// compensating-action pattern: append the log record optimistically, run the
// remote edit, then commit or roll the record back, so the log never shows
// an instruction whose edit did not take effect.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"retouch-server/canvas"
	"retouch-server/core"
	"retouch-server/raster"
)

// Sentinel errors for session operations.
var (
	// ErrNoImage is returned when an operation needs a current image.
	ErrNoImage = errors.New("no image loaded")
	// ErrEmptyInstruction is returned when a submitted instruction is blank.
	ErrEmptyInstruction = errors.New("instruction must not be blank")
	// ErrBusy is returned when a submission is already in flight.
	ErrBusy = errors.New("an edit is already in progress")
	// ErrStale is returned when an edit resolved after the image it was
	// issued against had been cleared or replaced.
	ErrStale = errors.New("image changed while the edit was in progress")
	// ErrCannotUndo is returned when no older version exists.
	ErrCannotUndo = errors.New("cannot undo")
	// ErrCannotRedo is returned when no newer version exists.
	ErrCannotRedo = errors.New("cannot redo")
)

// State is a snapshot of a session for the API.
type State struct {
	HasImage    bool              `json:"hasImage"`
	Width       int               `json:"width,omitempty"`
	Height      int               `json:"height,omitempty"`
	Cursor      int               `json:"cursor"`
	Length      int               `json:"length"`
	CanUndo     bool              `json:"canUndo"`
	CanRedo     bool              `json:"canRedo"`
	MaskPresent bool              `json:"maskPresent"`
	InFlight    bool              `json:"inFlight"`
	Log         []core.EditRecord `json:"log"`
}

// Session holds the editing state of one browser session. All methods are
// safe for concurrent use; the one long-running operation (Submit) releases
// the lock around the remote call so undo/redo and drawing stay interactive
// while an edit is in flight.
type Session struct {
	mu           sync.Mutex
	history      *core.History
	overlay      *canvas.Overlay
	mask         *core.Raster
	log          []core.EditRecord
	inFlight     bool
	lastActivity time.Time
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{
		history:      core.NewHistory(),
		overlay:      canvas.NewOverlay(),
		lastActivity: time.Now(),
	}
}

// UploadImage normalizes an uploaded file and makes it the sole history
// entry. Any existing mask is discarded; a mask from a prior image has no
// meaning over a new one.
func (s *Session) UploadImage(data []byte) (core.Raster, error) {
	img, err := raster.Normalize(data)
	if err != nil {
		return core.Raster{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Reset(img)
	s.dropMaskLocked()

	logrus.WithFields(logrus.Fields{
		"width":  img.Width,
		"height": img.Height,
	}).Info("Image uploaded")
	return img, nil
}

// ClearImage empties the history and discards the mask. The instruction log
// is kept; it is a chat transcript, not image state.
func (s *Session) ClearImage() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Clear()
	s.dropMaskLocked()
}

// CurrentImage returns the image at the history cursor, or nil when the
// session holds no image.
func (s *Session) CurrentImage() *core.Raster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Current()
}

// Undo steps one version back. The mask is discarded because the displayed
// image changes.
func (s *Session) Undo() (*core.Raster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.history.StepBack()
	if !ok {
		return nil, ErrCannotUndo
	}
	s.dropMaskLocked()
	return img, nil
}

// Redo steps one version forward. The mask is discarded because the
// displayed image changes.
func (s *Session) Redo() (*core.Raster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.history.StepForward()
	if !ok {
		return nil, ErrCannotRedo
	}
	s.dropMaskLocked()
	return img, nil
}

// SetMask installs a finished mask for the current image. Returns ErrNoImage
// when there is nothing to mask.
func (s *Session) SetMask(m *core.Raster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.history.Current() == nil {
		return ErrNoImage
	}
	s.mask = m
	return nil
}

// Mask returns the current mask, or nil when absent.
func (s *Session) Mask() *core.Raster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mask
}

// ClearMask wipes the overlay and sets the mask absent.
func (s *Session) ClearMask() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropMaskLocked()
}

// Draw runs fn against the session's overlay under the session lock. The
// websocket drawing channel uses this for viewport and brush events.
func (s *Session) Draw(fn func(o *canvas.Overlay)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.overlay)
}

// FinishStroke closes the open stroke, serializes the overlay and installs
// the result as the session mask. Returns the new mask, nil when the overlay
// holds no marks.
func (s *Session) FinishStroke() *core.Raster {
	s.mu.Lock()
	defer s.mu.Unlock()

	mask := s.overlay.EndStroke()
	if s.history.Current() == nil {
		// Nothing to mask; keep the session consistent.
		mask = nil
	}
	s.mask = mask
	return mask
}

// EditLog returns a copy of the instruction log.
func (s *Session) EditLog() []core.EditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.EditRecord, len(s.log))
	copy(out, s.log)
	return out
}

// Snapshot returns the current session state for the API.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		HasImage:    s.history.Current() != nil,
		Cursor:      s.history.Cursor(),
		Length:      s.history.Len(),
		CanUndo:     s.history.CanStepBack(),
		CanRedo:     s.history.CanStepForward(),
		MaskPresent: s.mask != nil,
		InFlight:    s.inFlight,
		Log:         make([]core.EditRecord, len(s.log)),
	}
	copy(st.Log, s.log)
	if img := s.history.Current(); img != nil {
		st.Width = img.Width
		st.Height = img.Height
	}
	return st
}

// Submit runs one instruction through the remote editor.
//
// The protocol: validate, append the log record optimistically, snapshot
// (image, mask, epoch), release the lock for the remote call, then commit on
// success or remove exactly the appended record on failure. At most one
// submission is in flight per session. If the history epoch advanced during
// the flight (image cleared or replaced), the result is discarded and
// ErrStale returned. Undo/redo during the flight is allowed; the result is
// then committed on top of wherever the cursor stands: an accepted race,
// not a guarded one.
func (s *Session) Submit(ctx context.Context, ed core.Editor, instruction string) (*core.Raster, *core.EditRecord, error) {
	instruction = strings.TrimSpace(instruction)

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, nil, ErrBusy
	}
	img := s.history.Current()
	if img == nil {
		s.mu.Unlock()
		return nil, nil, ErrNoImage
	}
	if instruction == "" {
		s.mu.Unlock()
		return nil, nil, ErrEmptyInstruction
	}

	record := core.EditRecord{
		ID:          ulid.Make().String(),
		Instruction: instruction,
		At:          time.Now(),
	}
	s.log = append(s.log, record)

	mask := s.prepareMaskLocked(*img)
	epoch := s.history.Epoch()
	s.inFlight = true
	s.mu.Unlock()

	result, err := ed.Edit(ctx, instruction, *img, mask)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false

	if err != nil {
		s.removeRecordLocked(record.ID)
		logrus.WithField("error", err).Warn("Edit submission failed")
		return nil, nil, err
	}

	if s.history.Epoch() != epoch {
		s.removeRecordLocked(record.ID)
		logrus.WithFields(logrus.Fields{
			"record_id": record.ID,
		}).Info("Discarding stale edit result")
		return nil, nil, ErrStale
	}

	s.history.Commit(result)
	s.dropMaskLocked()

	logrus.WithFields(logrus.Fields{
		"record_id": record.ID,
		"width":     result.Width,
		"height":    result.Height,
	}).Info("Edit committed")
	return &result, &record, nil
}

// prepareMaskLocked returns the mask to submit alongside img. The overlay is
// sized to the rendered box of the image element, so the mask is rescaled to
// the image's own dimensions when the two disagree. Must be called with the
// lock held.
func (s *Session) prepareMaskLocked(img core.Raster) *core.Raster {
	if s.mask == nil {
		return nil
	}
	if s.mask.Width == img.Width && s.mask.Height == img.Height {
		return s.mask
	}
	scaled, err := raster.Resize(*s.mask, img.Width, img.Height)
	if err != nil {
		logrus.WithField("error", err).Warn("Failed to scale mask; submitting without it")
		return nil
	}
	return &scaled
}

// removeRecordLocked removes the log entry with the given ID. Records are
// removed from the tail in practice (the rollback of the newest submission),
// so the backwards scan ends immediately.
func (s *Session) removeRecordLocked(id string) {
	for i := len(s.log) - 1; i >= 0; i-- {
		if s.log[i].ID == id {
			s.log = append(s.log[:i], s.log[i+1:]...)
			return
		}
	}
}

// dropMaskLocked wipes the overlay and sets the mask absent. Must be called
// with the lock held. Every image change funnels through here.
func (s *Session) dropMaskLocked() {
	s.overlay.Clear()
	s.mask = nil
}
