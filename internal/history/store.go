package history

import (
	"errors"
	"sync"
	"time"

	"github.com/yoockh/yoointerview/internal/models"
)

var (
	ErrNotFound = errors.New("turn not found")
	// ErrSealed is returned for writes after the report snapshot was taken.
	ErrSealed = errors.New("history is sealed")
	// ErrFinal is returned by PatchPending when the turn already has final metrics.
	ErrFinal = errors.New("turn already analyzed")
)

// Store is the ordered turn history of one session. Turns are appended and patched by
// id only; nothing is deleted or reordered.
type Store struct {
	mu     sync.RWMutex
	turns  []models.Turn
	index  map[int64]int
	nextID int64
	sealed bool
}

func NewStore() *Store {
	return &Store{index: make(map[int64]int), nextID: 1}
}

// Append assigns the next id to t and stores it.
func (s *Store) Append(t models.Turn) (models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return models.Turn{}, ErrSealed
	}
	t.ID = s.nextID
	s.nextID++
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.index[t.ID] = len(s.turns)
	s.turns = append(s.turns, t)
	return t, nil
}

// PatchByID replaces the metrics of turn id wholesale.
func (s *Store) PatchByID(id int64, m models.AnalysisMetrics) (models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return models.Turn{}, ErrSealed
	}
	i, ok := s.index[id]
	if !ok {
		return models.Turn{}, ErrNotFound
	}
	s.turns[i].Metrics = m
	return s.turns[i], nil
}

// PatchPending replaces the metrics of turn id only while they are still placeholders,
// so each committed turn receives its final metrics once.
func (s *Store) PatchPending(id int64, m models.AnalysisMetrics) (models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return models.Turn{}, ErrSealed
	}
	i, ok := s.index[id]
	if !ok {
		return models.Turn{}, ErrNotFound
	}
	if s.turns[i].Metrics.Final() {
		return s.turns[i], ErrFinal
	}
	s.turns[i].Metrics = m
	return s.turns[i], nil
}

func (s *Store) Get(id int64) (models.Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.Turn{}, false
	}
	return s.turns[i], true
}

// Snapshot copies the whole history in id order.
func (s *Store) Snapshot() []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Recent copies the last n turns.
func (s *Store) Recent(n int) []models.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.turns) {
		n = len(s.turns)
	}
	if n <= 0 {
		return []models.Turn{}
	}
	out := make([]models.Turn, n)
	copy(out, s.turns[len(s.turns)-n:])
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Pending lists the ids whose metrics are still placeholders.
func (s *Store) Pending() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	for _, t := range s.turns {
		if !t.Metrics.Final() {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// Seal freezes the store and returns the final snapshot.
func (s *Store) Seal() []models.Turn {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
	return s.Snapshot()
}

func (s *Store) Sealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed
}
