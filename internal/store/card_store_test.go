package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SAP-F-2025/learning-progress-service/internal/models"
)

var t0 = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestCard(userID, objectiveID string) *models.ReviewCard {
	lastScore := 0.85
	lastReview := t0.Add(-24 * time.Hour)
	return &models.ReviewCard{
		ID:                uuid.NewString(),
		UserID:            userID,
		ObjectiveID:       objectiveID,
		LessonID:          "lesson-1",
		IntervalDays:      6,
		Repetitions:       2,
		EaseFactor:        2.5,
		DueDate:           t0.Add(6 * 24 * time.Hour),
		LastReview:        &lastReview,
		LastScore:         &lastScore,
		TotalReviews:      4,
		SuccessfulReviews: 3,
		CreatedAt:         t0.Add(-30 * 24 * time.Hour),
		UpdatedAt:         t0,
	}
}

func TestCardStore_CreateIfAbsent(t *testing.T) {
	s := NewCardStore()

	card := newTestCard("user-1", "obj-1")
	stored, created := s.CreateIfAbsent(card)

	assert.True(t, created)
	assert.Equal(t, card.ID, stored.ID)
	assert.Equal(t, 1, s.Len())

	// Second create for the same key keeps the original card
	duplicate := newTestCard("user-1", "obj-1")
	existing, created := s.CreateIfAbsent(duplicate)

	assert.False(t, created)
	assert.Equal(t, card.ID, existing.ID)
	assert.Equal(t, 1, s.Len())
}

func TestCardStore_Get(t *testing.T) {
	s := NewCardStore()

	_, ok := s.Get("user-1", "obj-1")
	assert.False(t, ok)

	s.Put(newTestCard("user-1", "obj-1"))

	card, ok := s.Get("user-1", "obj-1")
	require.True(t, ok)
	assert.Equal(t, "user-1", card.UserID)
	assert.Equal(t, "obj-1", card.ObjectiveID)
}

func TestCardStore_GetReturnsCopy(t *testing.T) {
	s := NewCardStore()
	s.Put(newTestCard("user-1", "obj-1"))

	card, ok := s.Get("user-1", "obj-1")
	require.True(t, ok)

	card.Repetitions = 99
	*card.LastScore = 0.1

	fresh, ok := s.Get("user-1", "obj-1")
	require.True(t, ok)
	assert.Equal(t, 2, fresh.Repetitions)
	assert.Equal(t, 0.85, *fresh.LastScore)
}

func TestCardStore_Update(t *testing.T) {
	s := NewCardStore()
	s.Put(newTestCard("user-1", "obj-1"))

	updated, err := s.Update("user-1", "obj-1", func(card *models.ReviewCard) error {
		card.Repetitions = 3
		card.IntervalDays = 15
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, updated.Repetitions)
	assert.Equal(t, float64(15), updated.IntervalDays)

	stored, ok := s.Get("user-1", "obj-1")
	require.True(t, ok)
	assert.Equal(t, 3, stored.Repetitions)
}

func TestCardStore_UpdateMissingCard(t *testing.T) {
	s := NewCardStore()

	_, err := s.Update("user-1", "obj-1", func(card *models.ReviewCard) error {
		return nil
	})

	assert.ErrorIs(t, err, ErrCardNotFound)
}

func TestCardStore_UpdateRollsBackOnError(t *testing.T) {
	s := NewCardStore()
	s.Put(newTestCard("user-1", "obj-1"))

	boom := errors.New("boom")
	_, err := s.Update("user-1", "obj-1", func(card *models.ReviewCard) error {
		card.Repetitions = 99
		return boom
	})

	assert.ErrorIs(t, err, boom)

	stored, ok := s.Get("user-1", "obj-1")
	require.True(t, ok)
	assert.Equal(t, 2, stored.Repetitions)
}

func TestCardStore_ConcurrentUpdatesSameKey(t *testing.T) {
	s := NewCardStore()
	card := newTestCard("user-1", "obj-1")
	card.TotalReviews = 0
	card.SuccessfulReviews = 0
	s.Put(card)

	const writers = 100
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Update("user-1", "obj-1", func(c *models.ReviewCard) error {
				c.TotalReviews++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, ok := s.Get("user-1", "obj-1")
	require.True(t, ok)
	assert.Equal(t, writers, stored.TotalReviews)
}

func TestCardStore_ForUser(t *testing.T) {
	s := NewCardStore()
	s.Put(newTestCard("user-1", "obj-b"))
	s.Put(newTestCard("user-1", "obj-a"))
	s.Put(newTestCard("user-2", "obj-c"))

	cards := s.ForUser("user-1")

	require.Len(t, cards, 2)
	assert.Equal(t, "obj-a", cards[0].ObjectiveID)
	assert.Equal(t, "obj-b", cards[1].ObjectiveID)

	assert.Empty(t, s.ForUser("user-3"))
}

func TestCardStore_ExportImportRoundTrip(t *testing.T) {
	s := NewCardStore()
	s.Put(newTestCard("user-1", "obj-1"))
	s.Put(newTestCard("user-1", "obj-2"))
	s.Put(newTestCard("user-2", "obj-1"))

	exported := s.Export()
	require.Len(t, exported, 3)

	restored := NewCardStore()
	imported := restored.Import(exported)

	assert.Equal(t, 3, imported)
	assert.Equal(t, exported, restored.Export())
}

func TestCardStore_ExportOrderIsDeterministic(t *testing.T) {
	s := NewCardStore()
	s.Put(newTestCard("user-2", "obj-1"))
	s.Put(newTestCard("user-1", "obj-2"))
	s.Put(newTestCard("user-1", "obj-1"))

	exported := s.Export()

	require.Len(t, exported, 3)
	assert.Equal(t, "user-1", exported[0].UserID)
	assert.Equal(t, "obj-1", exported[0].ObjectiveID)
	assert.Equal(t, "user-1", exported[1].UserID)
	assert.Equal(t, "obj-2", exported[1].ObjectiveID)
	assert.Equal(t, "user-2", exported[2].UserID)
}
