package mqttier

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// InflightRecord is a persisted outbound QoS>0 publish.
type InflightRecord struct {
	PacketID uint16
	Message  *Message

	// Released is set once PUBREC arrived for a QoS 2 publish; on resume
	// the client sends PUBREL instead of the PUBLISH.
	Released bool
}

// SessionStore persists outbound in-flight messages so a session started
// with clean start disabled can resume them after a restart.
//
// Calls are made from the client's event loop and should return quickly.
type SessionStore interface {
	Save(ctx context.Context, clientID string, rec InflightRecord) error
	Delete(ctx context.Context, clientID string, packetID uint16) error
	// Load returns the records for clientID ordered by packet id.
	Load(ctx context.Context, clientID string) ([]InflightRecord, error)
	Clear(ctx context.Context, clientID string) error
}

// MemoryStore is a process-local SessionStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[uint16]InflightRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]map[uint16]InflightRecord)}
}

func (s *MemoryStore) Save(_ context.Context, clientID string, rec InflightRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.records[clientID]
	if !ok {
		m = make(map[uint16]InflightRecord)
		s.records[clientID] = m
	}
	rec.Message = rec.Message.Clone()
	m[rec.PacketID] = rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, clientID string, packetID uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records[clientID], packetID)
	return nil
}

func (s *MemoryStore) Load(_ context.Context, clientID string) ([]InflightRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.records[clientID]
	out := make([]InflightRecord, 0, len(m))
	for _, id := range slices.Sorted(maps.Keys(m)) {
		rec := m[id]
		rec.Message = rec.Message.Clone()
		out = append(out, rec)
	}
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, clientID)
	return nil
}

// Len returns the number of records held for clientID.
func (s *MemoryStore) Len(clientID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[clientID])
}
