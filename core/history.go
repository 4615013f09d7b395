package core

import "time"

// History is a linear sequence of image versions with a cursor marking the
// version currently shown. Committing while the cursor sits before the last
// entry discards everything after the cursor (classic undo-branch semantics:
// a new edit invalidates the redo tail).
//
// The epoch identifies one lifetime of the sequence. It advances whenever the
// sequence is replaced wholesale (Reset, Clear) but never on Commit or cursor
// movement. Callers that resolve work started against an older epoch can use
// it to detect that the result no longer has a home.
//
// History is not safe for concurrent use; the owning session serializes
// access to it.
type History struct {
	entries []HistoryEntry
	cursor  int
	epoch   uint64
}

// NewHistory returns an empty history with the cursor parked at -1.
func NewHistory() *History {
	return &History{cursor: -1}
}

// Reset replaces the sequence with the single given version and advances the
// epoch. Used on a fresh upload.
func (h *History) Reset(initial Raster) {
	h.entries = []HistoryEntry{{Image: initial, At: time.Now()}}
	h.cursor = 0
	h.epoch++
}

// Clear empties the sequence and advances the epoch. Used when the user
// discards the image entirely.
func (h *History) Clear() {
	h.entries = nil
	h.cursor = -1
	h.epoch++
}

// Commit truncates the sequence to the cursor position, appends next and
// moves the cursor onto it. This is the only write path for a successful
// edit result, and the only operation that can shrink the sequence.
func (h *History) Commit(next Raster) {
	h.entries = append(h.entries[:h.cursor+1], HistoryEntry{Image: next, At: time.Now()})
	h.cursor = len(h.entries) - 1
}

// StepBack moves the cursor one version back and returns the now-current
// image. Returns false without moving if there is nothing to step back to.
func (h *History) StepBack() (*Raster, bool) {
	if !h.CanStepBack() {
		return nil, false
	}
	h.cursor--
	return h.Current(), true
}

// StepForward moves the cursor one version forward and returns the
// now-current image. Returns false without moving if there is nothing to
// step forward to.
func (h *History) StepForward() (*Raster, bool) {
	if !h.CanStepForward() {
		return nil, false
	}
	h.cursor++
	return h.Current(), true
}

// CanStepBack reports whether an older version exists before the cursor.
func (h *History) CanStepBack() bool {
	return h.cursor > 0
}

// CanStepForward reports whether a newer version exists after the cursor.
func (h *History) CanStepForward() bool {
	return h.cursor < len(h.entries)-1
}

// Current returns the image at the cursor, or nil when the history is empty.
func (h *History) Current() *Raster {
	if h.cursor < 0 {
		return nil
	}
	img := h.entries[h.cursor].Image
	return &img
}

// Len returns the number of stored versions.
func (h *History) Len() int {
	return len(h.entries)
}

// Cursor returns the current cursor position, -1 when empty.
func (h *History) Cursor() int {
	return h.cursor
}

// Epoch returns the current sequence lifetime counter.
func (h *History) Epoch() uint64 {
	return h.epoch
}
