package adapter

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory SessionStore, suitable for tests and for
// deployments that accept losing session state across process restarts.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*SessionState
}

var _ SessionStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*SessionState)}
}

func (m *MemoryStore) Get(_ context.Context, identity string) (*SessionState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[identity]
	if !ok {
		return nil, false, nil
	}
	return s.Copy(), true, nil
}

func (m *MemoryStore) Set(_ context.Context, state *SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[state.Identity] = state.Copy()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, identity)
	return nil
}

func (m *MemoryStore) Create(identity string, transient bool) *SessionState {
	return &SessionState{Identity: identity, Transient: transient}
}

// MemoryQoS2Store is an in-memory QoS2Store, the QoS-2 counterpart to
// MemoryStore.
type MemoryQoS2Store struct {
	mu    sync.Mutex
	state map[string]*QoS2State
}

var _ QoS2Store = (*MemoryQoS2Store)(nil)

// NewMemoryQoS2Store creates an empty MemoryQoS2Store.
func NewMemoryQoS2Store() *MemoryQoS2Store {
	return &MemoryQoS2Store{state: make(map[string]*QoS2State)}
}

func qos2Key(identity string, packetID uint16) string {
	return fmt.Sprintf("%s\x00%d", identity, packetID)
}

func (m *MemoryQoS2Store) Get(_ context.Context, identity string, packetID uint16) (*QoS2State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.state[qos2Key(identity, packetID)]
	return s, ok, nil
}

func (m *MemoryQoS2Store) Set(_ context.Context, identity string, state *QoS2State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[qos2Key(identity, state.PacketID)] = state
	return nil
}

func (m *MemoryQoS2Store) Delete(_ context.Context, identity string, packetID uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, qos2Key(identity, packetID))
	return nil
}

func (m *MemoryQoS2Store) Create(sequence uint64) *QoS2State {
	return &QoS2State{Sequence: sequence, Phase: AwaitingPubrec}
}
