package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotMounted     = errors.New("camera surface not mounted")
	ErrAlreadyMounted = errors.New("camera surface already mounted")
)

// SessionFactory builds the collaborators of a fresh session for a camera
// It is called on every mount, so schedulers and canvases are never shared between sessions.
type SessionFactory func(cameraID string) (SessionConfig, error)

// Manager owns the mounted sessions, one per camera
type Manager struct {
	sessions map[string]*Session
	factory  SessionFactory
	eventBus *EventBus
	ctx      context.Context
	cancel   context.CancelFunc
	log      *logrus.Entry
	mu       sync.RWMutex
}

// NewManager creates a session manager; sessions live until Unmount, Remount or Close
func NewManager(ctx context.Context, factory SessionFactory, eventBus *EventBus, log *logrus.Entry) *Manager {
	if eventBus == nil {
		eventBus = NewEventBus()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		sessions: make(map[string]*Session),
		factory:  factory,
		eventBus: eventBus,
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
	}
}

// Mount creates and mounts a session for a camera
func (m *Manager) Mount(cameraID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[cameraID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyMounted, cameraID)
	}
	return m.mountLocked(cameraID)
}

func (m *Manager) mountLocked(cameraID string) (*Session, error) {
	cfg, err := m.factory(cameraID)
	if err != nil {
		return nil, fmt.Errorf("failed to build session for camera %s: %w", cameraID, err)
	}
	cfg.CameraID = cameraID
	if cfg.Bus == nil {
		cfg.Bus = m.eventBus
	}
	if cfg.Logger == nil {
		cfg.Logger = m.log
	}
	if cfg.Scheduler == nil {
		return nil, fmt.Errorf("session for camera %s has no scheduler", cameraID)
	}

	session := NewSession(cfg)
	session.Mount(m.ctx)
	m.sessions[cameraID] = session

	m.log.WithFields(logrus.Fields{"camera_id": cameraID, "session_id": session.ID()}).Info("mounted camera surface")
	return session, nil
}

// Unmount closes the session of a camera
func (m *Manager) Unmount(cameraID string) error {
	m.mu.Lock()
	session, exists := m.sessions[cameraID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotMounted, cameraID)
	}
	delete(m.sessions, cameraID)
	m.mu.Unlock()

	session.Close()
	m.log.WithField("camera_id", cameraID).Info("unmounted camera surface")
	return nil
}

// Remount replaces the session of a camera with a fresh idle one
// This is the only operation that clears a history window.
// The old session is closed outside the lock because its last cycle may still be publishing.
func (m *Manager) Remount(cameraID string) (*Session, error) {
	m.mu.Lock()
	old, exists := m.sessions[cameraID]
	if !exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotMounted, cameraID)
	}
	delete(m.sessions, cameraID)
	session, err := m.mountLocked(cameraID)
	m.mu.Unlock()

	old.Close()
	return session, err
}

// Session returns the session of a camera
func (m *Manager) Session(cameraID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[cameraID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotMounted, cameraID)
	}
	return session, nil
}

// Sessions returns all sessions ordered by camera id
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CameraID() < sessions[j].CameraID()
	})
	return sessions
}

// Bus returns the event bus shared by all sessions
func (m *Manager) Bus() *EventBus {
	return m.eventBus
}

// Close unmounts every session
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	m.cancel()
}
