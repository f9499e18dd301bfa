package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"sandboxfs/internal/fs"
	"sandboxfs/internal/logging"
)

var (
	logger = logging.GetLogger().WithPrefix("state")
)

// Manager handles loading and saving sandbox state
type Manager struct {
	statePath   string
	backupDir   string
	backupCount int
	mu          sync.Mutex
}

// NewManager creates a new state manager for the given state file path.
// It ensures the state directory exists and is writable.
func NewManager(statePath string) (*Manager, error) {
	logger.Debug("Creating new state manager with path: %s", statePath)

	absPath, err := filepath.Abs(statePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state path %s: %w", statePath, err)
	}
	logger.Debug("Resolved state path: %s", absPath)

	stateDir := filepath.Dir(absPath)
	logger.Debug("Ensuring state directory exists: %s", stateDir)
	if mkdirErr := os.MkdirAll(stateDir, 0755); mkdirErr != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, mkdirErr)
	}

	// Try to create an empty file to verify we have write permissions
	f, writeErr := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE, 0600)
	if writeErr != nil {
		return nil, fmt.Errorf("failed to create state file %s: %w", absPath, writeErr)
	}
	f.Close()

	backupDir := filepath.Join(stateDir, ".sandboxfs-backups")
	logger.Debug("Creating backup directory: %s", backupDir)
	if backupDirErr := os.MkdirAll(backupDir, 0755); backupDirErr != nil {
		return nil, fmt.Errorf("failed to create backup directory %s: %w", backupDir, backupDirErr)
	}

	logger.Info("State manager initialization complete")
	return &Manager{
		statePath:   absPath,
		backupDir:   backupDir,
		backupCount: 5,
	}, nil
}

// LoadState loads the sandbox state from disk. An empty or missing state file
// yields an empty state.
func (sm *Manager) LoadState() (*FSState, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.loadLocked()
}

func (sm *Manager) loadLocked() (*FSState, error) {
	logger.Debug("Loading state from: %s", sm.statePath)

	data, err := os.ReadFile(sm.statePath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if len(data) == 0 {
		logger.Info("No valid state file, starting with empty state")
		return &FSState{Version: currentVersion}, nil
	}

	logger.Debug("Parsing existing state file (%d bytes)", len(data))
	var state FSState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if state.Version > currentVersion {
		return nil, fmt.Errorf("state file version %d is newer than supported version %d", state.Version, currentVersion)
	}
	for _, m := range state.Mappings {
		if _, err := m.Validate(); err != nil {
			return nil, fmt.Errorf("state file contains invalid mapping %s: %w", m, err)
		}
	}

	logger.Info("State loaded successfully with %d mappings", len(state.Mappings))
	return &state, nil
}

// SaveState saves the sandbox state to disk.
// It automatically creates a backup before saving.
func (sm *Manager) SaveState(state *FSState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.saveLocked(state)
}

func (sm *Manager) saveLocked(state *FSState) error {
	logger.Debug("Saving state to: %s", sm.statePath)

	// Create backup before saving
	if backupErr := sm.createBackup(); backupErr != nil {
		logger.Warn("Failed to create backup: %v", backupErr)
		// Continue with save even if backup fails
	}

	state.Version = currentVersion
	data, marshalErr := json.MarshalIndent(state, "", "  ")
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal state: %w", marshalErr)
	}

	// Write to a sibling file first so a crash never leaves a torn state file
	tmpPath := sm.statePath + ".tmp"
	logger.Trace("Writing %d bytes of state data", len(data))
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmpPath, sm.statePath); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	logger.Debug("State saved successfully")
	return nil
}

// Record appends m to the persisted mappings. A mapping already recorded for
// the same virtual path is replaced in place if its host path or writability
// differs.
func (sm *Manager) Record(m fs.Mapping) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	state, err := sm.loadLocked()
	if err != nil {
		return err
	}
	switch i := state.indexOf(m.Path); {
	case i < 0:
		state.Mappings = append(state.Mappings, m)
		logger.Info("Recording mapping %s", m)
	case state.Mappings[i] == m:
		logger.Trace("Mapping for %s already recorded", m.Path)
		return nil
	default:
		logger.Info("Replacing recorded mapping %s with %s", state.Mappings[i], m)
		state.Mappings[i] = m
	}
	return sm.saveLocked(state)
}

// createBackup creates a timestamped backup of the current state file
func (sm *Manager) createBackup() error {
	data, err := os.ReadFile(sm.statePath)
	if os.IsNotExist(err) || (err == nil && len(data) == 0) {
		return nil
	}
	if err != nil {
		return err
	}

	timestamp := time.Now().Format("20060102-150405.000000000")
	backupPath := filepath.Join(sm.backupDir, fmt.Sprintf("state-%s.json", timestamp))

	logger.Debug("Creating backup: %s", backupPath)
	if err := os.WriteFile(backupPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	return sm.cleanupOldBackups()
}

// cleanupOldBackups removes old backup files, keeping only the most recent ones
func (sm *Manager) cleanupOldBackups() error {
	entries, err := os.ReadDir(sm.backupDir)
	if err != nil {
		return err
	}

	var backups []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			backups = append(backups, entry.Name())
		}
	}

	// Timestamped names sort chronologically; newest first
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	for i := sm.backupCount; i < len(backups); i++ {
		path := filepath.Join(sm.backupDir, backups[i])
		logger.Debug("Removing old backup: %s", path)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", path, err)
		}
	}

	return nil
}
