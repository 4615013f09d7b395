package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"retouch-server/core"
)

type fsStore struct {
	basePath string
}

// NewStore creates a new filesystem-based export store. Exports are laid out
// as basePath/<sessionID>/<exportID> JSON files.
func NewStore(basePath string) *fsStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Fatalf("failed to create base directory: %v", err)
	}
	return &fsStore{basePath: basePath}
}

// validComponent reports whether a session or export ID is safe to use as a
// single path element. Session IDs come from a client cookie, so they get the
// same treatment as export IDs.
func validComponent(s string) bool {
	return s != "" && s != "." && s != ".." && filepath.Base(s) == s
}

func (s *fsStore) sessionPath(sessionID string) (string, error) {
	if !validComponent(sessionID) {
		return "", fmt.Errorf("invalid session id")
	}
	return filepath.Join(s.basePath, sessionID), nil
}

// resolve joins and validates a session-scoped path, refusing anything that
// escapes the session directory.
func (s *fsStore) resolve(sessionID, id string) (string, error) {
	sessionPath, err := s.sessionPath(sessionID)
	if err != nil {
		return "", err
	}
	if !validComponent(id) {
		return "", fmt.Errorf("invalid export id")
	}
	filePath := filepath.Join(sessionPath, id)

	absSessionPath, err := filepath.Abs(sessionPath)
	if err != nil {
		return "", err
	}
	absFilePath, err := filepath.Abs(filePath)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absFilePath, absSessionPath+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: access denied")
	}
	return absFilePath, nil
}

func (s *fsStore) Create(ctx context.Context, export *core.Export) (string, error) {
	if export.SessionID == "" {
		return "", fmt.Errorf("session id is required")
	}

	id := ulid.Make().String()
	export.ID = id

	filePath, err := s.resolve(export.SessionID, id)
	if err != nil {
		return "", err
	}
	sessionPath := filepath.Dir(filePath)
	log := logrus.WithFields(logrus.Fields{
		"export_id": id,
		"file_path": filePath,
	})

	if err := os.MkdirAll(sessionPath, 0755); err != nil {
		log.WithError(err).Error("Failed to create session directory")
		return "", err
	}

	data, err := json.Marshal(export)
	if err != nil {
		log.WithError(err).Error("Failed to marshal export")
		return "", err
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		log.WithError(err).Error("Failed to write export file")
		return "", err
	}

	log.Info("Export created successfully")
	return id, nil
}

func (s *fsStore) Get(ctx context.Context, sessionID, id string) (*core.Export, error) {
	log := logrus.WithFields(logrus.Fields{"session_id": sessionID, "export_id": id})

	filePath, err := s.resolve(sessionID, id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Export file not found")
			return nil, fmt.Errorf("export with id %s not found for session %s", id, sessionID)
		}
		log.WithError(err).Error("Failed to read export file")
		return nil, err
	}

	var export core.Export
	if err := json.Unmarshal(data, &export); err != nil {
		log.WithError(err).Error("Failed to unmarshal export data")
		return nil, err
	}
	export.SessionID = sessionID

	log.Info("Export retrieved successfully")
	return &export, nil
}

func (s *fsStore) List(ctx context.Context, sessionID string) ([]*core.Export, error) {
	sessionPath, err := s.sessionPath(sessionID)
	if err != nil {
		return nil, err
	}
	log := logrus.WithField("session_id", sessionID).WithField("path", sessionPath)

	files, err := os.ReadDir(sessionPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info("Session directory does not exist, returning empty list.")
			return []*core.Export{}, nil
		}
		log.WithError(err).Error("Failed to read session directory")
		return nil, err
	}

	exports := make([]*core.Export, 0, len(files))
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(sessionPath, file.Name()))
		if err != nil {
			log.WithError(err).Warnf("Failed to read export file %s, skipping", file.Name())
			continue
		}

		var export core.Export
		if err := json.Unmarshal(data, &export); err != nil {
			log.WithError(err).Warnf("Failed to unmarshal export file %s, skipping", file.Name())
			continue
		}

		// List views omit the payload.
		export.Data = nil
		export.SessionID = sessionID
		exports = append(exports, &export)
	}

	log.Infof("Listed %d exports", len(exports))
	return exports, nil
}
