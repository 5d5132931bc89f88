package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("checkout: %w", InsufficientStock(7, 2))

	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.Equal(t, ErrInsufficientStock, Kind(err))
	assert.Equal(t, "insufficient stock for product 7", Message(err))
	assert.Equal(t, int64(7), Details(err)["product_id"])
}

func TestUnknownErrorIsPersistence(t *testing.T) {
	err := errors.New("connection reset")

	assert.Equal(t, ErrPersistence, Kind(err))
	assert.Equal(t, "internal error", Message(err))
	assert.Empty(t, Details(err))
}

func TestPersistenceWrapsCause(t *testing.T) {
	err := Persistence(errors.New("deadlock detected"))

	assert.True(t, errors.Is(err, ErrPersistence))
	assert.Contains(t, err.Error(), "deadlock detected")
}
