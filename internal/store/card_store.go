// Package store holds the in-memory review card table owned by the
// retention scheduler. The table is an explicit handle created and torn down
// with its scheduler; durability happens only through the export/import
// round-trip.
package store

import (
	"errors"
	"sort"
	"sync"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

var ErrCardNotFound = errors.New("review card not found")

type cardKey struct {
	userID      string
	objectiveID string
}

// entry serializes writers per (user, objective) key. Entries are never
// removed, so an entry pointer stays valid once read from the map.
type entry struct {
	mu   sync.Mutex
	card *models.ReviewCard
}

// CardStore maps (userID, objectiveID) to review cards. Reads and writes on
// different keys never contend beyond the map lock; writes on the same key
// are serialized through the entry mutex so concurrent outcome recordings
// cannot lose counter updates.
type CardStore struct {
	mu    sync.RWMutex
	cards map[cardKey]*entry
}

func NewCardStore() *CardStore {
	return &CardStore{
		cards: make(map[cardKey]*entry),
	}
}

// Get returns a copy of the card, or false when no card exists for the key.
func (s *CardStore) Get(userID, objectiveID string) (*models.ReviewCard, bool) {
	s.mu.RLock()
	e, ok := s.cards[cardKey{userID: userID, objectiveID: objectiveID}]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	card := e.card.Clone()
	e.mu.Unlock()
	return card, true
}

// CreateIfAbsent stores the card unless one already exists for its key.
// Returns the card now in the store and whether this call created it.
func (s *CardStore) CreateIfAbsent(card *models.ReviewCard) (*models.ReviewCard, bool) {
	key := cardKey{userID: card.UserID, objectiveID: card.ObjectiveID}

	s.mu.Lock()
	e, exists := s.cards[key]
	if !exists {
		s.cards[key] = &entry{card: card.Clone()}
		s.mu.Unlock()
		return card.Clone(), true
	}
	s.mu.Unlock()

	e.mu.Lock()
	existing := e.card.Clone()
	e.mu.Unlock()
	return existing, false
}

// Put unconditionally stores the card, replacing any existing state for its
// key.
func (s *CardStore) Put(card *models.ReviewCard) {
	key := cardKey{userID: card.UserID, objectiveID: card.ObjectiveID}

	s.mu.Lock()
	e, exists := s.cards[key]
	if !exists {
		s.cards[key] = &entry{card: card.Clone()}
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	e.mu.Lock()
	e.card = card.Clone()
	e.mu.Unlock()
}

// Update applies fn to a working copy of the card under the per-key lock and
// commits the result only when fn succeeds. Returns a copy of the committed
// card. Returns ErrCardNotFound when no card exists for the key.
func (s *CardStore) Update(userID, objectiveID string, fn func(card *models.ReviewCard) error) (*models.ReviewCard, error) {
	s.mu.RLock()
	e, ok := s.cards[cardKey{userID: userID, objectiveID: objectiveID}]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrCardNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.card.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	e.card = working
	return working.Clone(), nil
}

// ForUser returns copies of all cards belonging to one user, ordered by
// objective ID.
func (s *CardStore) ForUser(userID string) []*models.ReviewCard {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.cards))
	for key, e := range s.cards {
		if key.userID == userID {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	cards := make([]*models.ReviewCard, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		cards = append(cards, e.card.Clone())
		e.mu.Unlock()
	}

	sort.Slice(cards, func(i, j int) bool {
		return cards[i].ObjectiveID < cards[j].ObjectiveID
	})
	return cards
}

// Export snapshots every card in the store, ordered by (user, objective) so
// repeated exports of the same state are identical.
func (s *CardStore) Export() []models.ReviewCard {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.cards))
	for _, e := range s.cards {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	cards := make([]models.ReviewCard, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		cards = append(cards, *e.card.Clone())
		e.mu.Unlock()
	}

	sort.Slice(cards, func(i, j int) bool {
		if cards[i].UserID != cards[j].UserID {
			return cards[i].UserID < cards[j].UserID
		}
		return cards[i].ObjectiveID < cards[j].ObjectiveID
	})
	return cards
}

// Import upserts every given card, field-for-field as exported. Returns the
// number of cards imported.
func (s *CardStore) Import(cards []models.ReviewCard) int {
	for i := range cards {
		s.Put(&cards[i])
	}
	return len(cards)
}

func (s *CardStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cards)
}
