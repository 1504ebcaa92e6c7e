package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore implements SessionStore using one JSON file per identity on
// disk, adapted from the teacher library's per-client-ID file layout.
//
// File organization:
//
//	baseDir/
//	  <identity>.json
type FileStore struct {
	dir         string
	permissions os.FileMode
}

var _ SessionStore = (*FileStore)(nil)

// NewFileStore creates a directory-backed SessionStore rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: baseDir, permissions: 0644}, nil
}

func (f *FileStore) path(identity string) (string, error) {
	if strings.Contains(identity, "..") || strings.ContainsRune(identity, filepath.Separator) {
		return "", fmt.Errorf("identity contains invalid characters: %q", identity)
	}
	return filepath.Join(f.dir, identity+".json"), nil
}

type persistedSession struct {
	Transient     bool           `json:"transient"`
	Subscriptions []Subscription `json:"subscriptions"`
	Payload       []byte         `json:"payload,omitempty"`
}

func (f *FileStore) Get(_ context.Context, identity string) (*SessionState, bool, error) {
	path, err := f.path(identity)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read session state: %w", err)
	}

	var p persistedSession
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal session state: %w", err)
	}

	return &SessionState{
		Identity:      identity,
		Transient:     p.Transient,
		Subscriptions: p.Subscriptions,
		Payload:       p.Payload,
	}, true, nil
}

func (f *FileStore) Set(_ context.Context, state *SessionState) error {
	path, err := f.path(state.Identity)
	if err != nil {
		return err
	}

	data, err := json.Marshal(persistedSession{
		Transient:     state.Transient,
		Subscriptions: state.Subscriptions,
		Payload:       state.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, f.permissions); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write session state: %w", err)
	}
	return nil
}

func (f *FileStore) Delete(_ context.Context, identity string) error {
	path, err := f.path(identity)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	return nil
}

func (f *FileStore) Create(identity string, transient bool) *SessionState {
	return &SessionState{Identity: identity, Transient: transient}
}

// FileQoS2Store implements QoS2Store using one JSON file per (identity,
// packet id) pair on disk.
type FileQoS2Store struct {
	dir         string
	permissions os.FileMode
}

var _ QoS2Store = (*FileQoS2Store)(nil)

// NewFileQoS2Store creates a directory-backed QoS2Store rooted at baseDir.
func NewFileQoS2Store(baseDir string) (*FileQoS2Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileQoS2Store{dir: baseDir, permissions: 0644}, nil
}

func (f *FileQoS2Store) path(identity string, packetID uint16) (string, error) {
	if strings.Contains(identity, "..") || strings.ContainsRune(identity, filepath.Separator) {
		return "", fmt.Errorf("identity contains invalid characters: %q", identity)
	}
	return filepath.Join(f.dir, fmt.Sprintf("%s_%d.json", identity, packetID)), nil
}

func (f *FileQoS2Store) Get(_ context.Context, identity string, packetID uint16) (*QoS2State, bool, error) {
	path, err := f.path(identity, packetID)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read QoS-2 state: %w", err)
	}
	var s QoS2State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal QoS-2 state: %w", err)
	}
	return &s, true, nil
}

func (f *FileQoS2Store) Set(_ context.Context, identity string, state *QoS2State) error {
	path, err := f.path(identity, state.PacketID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal QoS-2 state: %w", err)
	}
	if err := os.WriteFile(path, data, f.permissions); err != nil {
		return fmt.Errorf("failed to write QoS-2 state: %w", err)
	}
	return nil
}

func (f *FileQoS2Store) Delete(_ context.Context, identity string, packetID uint16) error {
	path, err := f.path(identity, packetID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete QoS-2 state: %w", err)
	}
	return nil
}

func (f *FileQoS2Store) Create(sequence uint64) *QoS2State {
	return &QoS2State{Sequence: sequence, Phase: AwaitingPubrec}
}
