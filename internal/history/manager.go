package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager archives completed turns to a JSON file, one session per chat
// session.
type Manager struct {
	filePath    string
	mu          sync.RWMutex
	archive     *Archive
	current     *Session
	maxSessions int
}

// NewManager creates a new archive manager
func NewManager(filePath string, maxSessions int) *Manager {
	return &Manager{
		filePath:    filePath,
		archive:     &Archive{Sessions: []Session{}},
		maxSessions: maxSessions,
	}
}

// Load loads the archive from disk. A corrupted file is moved aside and a
// fresh archive is started.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := os.ReadFile(m.filePath)
	if errors.Is(err, os.ErrNotExist) {
		m.archive = &Archive{Sessions: []Session{}}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read history file: %w", err)
	}

	archive := &Archive{}
	if err := json.Unmarshal(data, archive); err != nil {
		if rerr := os.Rename(m.filePath, m.filePath+".backup"); rerr != nil {
			return fmt.Errorf("failed to back up corrupted history: %w", rerr)
		}
		archive = &Archive{Sessions: []Session{}}
	}
	m.archive = archive
	return nil
}

// StartSession begins a new archived session and returns its id.
func (m *Manager) StartSession() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startNewSession()
}

// startNewSession creates a new session (must be called with lock held)
func (m *Manager) startNewSession() string {
	now := time.Now()
	m.current = &Session{
		ID:        uuid.New().String(),
		StartedAt: now,
		UpdatedAt: now,
		Turns:     []Turn{},
	}
	m.archive.Sessions = append(m.archive.Sessions, *m.current)
	return m.current.ID
}

// AddTurns appends turns to the current session and saves.
func (m *Manager) AddTurns(turns ...Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		m.startNewSession()
	}

	for _, t := range turns {
		if t.Timestamp.IsZero() {
			t.Timestamp = time.Now()
		}
		m.current.Turns = append(m.current.Turns, t.clone())
	}
	m.current.UpdatedAt = time.Now()

	for i := range m.archive.Sessions {
		if m.archive.Sessions[i].ID == m.current.ID {
			m.archive.Sessions[i] = *m.current
			break
		}
	}

	return m.saveUnlocked()
}

// RecentTurns returns the last limit turns of the current session.
func (m *Manager) RecentTurns(limit int) []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil || len(m.current.Turns) == 0 {
		return []Turn{}
	}

	turns := m.current.Turns
	if len(turns) <= limit {
		return turns
	}
	return turns[len(turns)-limit:]
}

// Sessions returns the archived sessions, oldest first.
func (m *Manager) Sessions() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Session(nil), m.archive.Sessions...)
}

// CurrentSession returns the current session, or nil before StartSession.
func (m *Manager) CurrentSession() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Save persists the archive to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUnlocked()
}

// saveUnlocked saves without acquiring the lock (must be called with lock held)
func (m *Manager) saveUnlocked() error {
	if m.maxSessions > 0 && len(m.archive.Sessions) > m.maxSessions {
		m.archive.Sessions = m.archive.Sessions[len(m.archive.Sessions)-m.maxSessions:]
	}

	data, err := json.MarshalIndent(m.archive, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	tempPath := m.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, m.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
