package core

import (
	"context"
	"time"
)

// CanonicalMIME is the single encoding every raster is normalized to before
// it enters a session. Uploads in other formats are re-encoded on intake.
const CanonicalMIME = "image/png"

type (
	// Raster is an encoded image payload. A Raster is immutable once created;
	// an edit always produces a new Raster and never rewrites an existing one.
	Raster struct {
		Data   []byte `json:"-"`
		MIME   string `json:"mime"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	}

	// HistoryEntry wraps one committed image version.
	HistoryEntry struct {
		Image Raster    `json:"image"`
		At    time.Time `json:"at"`
	}

	// EditRecord is one entry of the per-session instruction log. Records are
	// appended optimistically when an instruction is submitted and removed
	// again if the remote edit fails, so the log never shows an instruction
	// that had no effect.
	EditRecord struct {
		ID          string    `json:"id"`
		Instruction string    `json:"instruction"`
		At          time.Time `json:"at"`
	}

	// Export is a user-requested download of the current image, named after
	// the moment it was created.
	Export struct {
		ID        string    `json:"id"`
		SessionID string    `json:"-"`
		Filename  string    `json:"filename"`
		Size      int64     `json:"size"`
		CreatedAt time.Time `json:"createdAt"`
		Data      []byte    `json:"data,omitempty"`
	}

	// ExportStore defines the persistence layer for exports. All operations
	// are scoped to a single session.
	ExportStore interface {
		// Create stores an export and returns its assigned ID.
		Create(ctx context.Context, export *Export) (string, error)

		// Get returns a single export by ID, ensuring it belongs to the session.
		Get(ctx context.Context, sessionID, id string) (*Export, error)

		// List returns metadata for all exports of a session. The returned
		// Export objects should not contain the `Data` field to keep the
		// response light.
		List(ctx context.Context, sessionID string) ([]*Export, error)
	}

	// Editor is the external collaborator that performs one remote edit.
	// The mask, when present, selects the region the instruction applies to
	// and must have been drawn over exactly the image passed alongside it.
	Editor interface {
		Edit(ctx context.Context, instruction string, image Raster, mask *Raster) (Raster, error)
	}
)
