package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"retouch-server/core"
)

// memStore keeps exports in memory, scoped per session.
type memStore struct {
	mu sync.RWMutex
	// exports maps sessionID -> exportID -> export.
	exports map[string]map[string]*core.Export
}

// NewStore creates a new in-memory export store.
func NewStore() *memStore {
	return &memStore{
		exports: make(map[string]map[string]*core.Export),
	}
}

func (s *memStore) Create(ctx context.Context, export *core.Export) (string, error) {
	if export.SessionID == "" {
		return "", fmt.Errorf("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := ulid.Make().String()
	export.ID = id

	sessionExports, ok := s.exports[export.SessionID]
	if !ok {
		sessionExports = make(map[string]*core.Export)
		s.exports[export.SessionID] = sessionExports
	}
	sessionExports[id] = export

	logrus.WithFields(logrus.Fields{
		"export_id": id,
		"filename":  export.Filename,
		"size":      export.Size,
	}).Info("Export created successfully")
	return id, nil
}

func (s *memStore) Get(ctx context.Context, sessionID, id string) (*core.Export, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := logrus.WithFields(logrus.Fields{"session_id": sessionID, "export_id": id})

	sessionExports, ok := s.exports[sessionID]
	if !ok {
		log.Warn("Session has no exports")
		return nil, fmt.Errorf("export with id %s not found for session %s", id, sessionID)
	}
	export, ok := sessionExports[id]
	if !ok {
		log.Warn("Export not found for session")
		return nil, fmt.Errorf("export with id %s not found for session %s", id, sessionID)
	}

	log.Info("Export retrieved successfully")
	return export, nil
}

func (s *memStore) List(ctx context.Context, sessionID string) ([]*core.Export, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionExports, ok := s.exports[sessionID]
	if !ok {
		return []*core.Export{}, nil
	}

	exports := make([]*core.Export, 0, len(sessionExports))
	for _, e := range sessionExports {
		// List views omit the payload.
		listExport := &core.Export{
			ID:        e.ID,
			SessionID: e.SessionID,
			Filename:  e.Filename,
			Size:      e.Size,
			CreatedAt: e.CreatedAt,
		}
		exports = append(exports, listExport)
	}

	sort.Slice(exports, func(i, j int) bool {
		if exports[i].CreatedAt.Equal(exports[j].CreatedAt) {
			return exports[i].ID < exports[j].ID
		}
		return exports[i].CreatedAt.After(exports[j].CreatedAt)
	})

	logrus.WithField("session_id", sessionID).Infof("Listed %d exports", len(exports))
	return exports, nil
}
