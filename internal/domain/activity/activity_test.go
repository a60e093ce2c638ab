package activity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	r := NewRecord("BRANCHES_KEY", "update", OutcomeRolledBack).WithEntity(5)

	assert.NotEqual(t, uuid.Nil, r.ID)
	require.NotNil(t, r.EntityID)
	assert.Equal(t, int64(5), *r.EntityID)
	assert.False(t, r.CreatedAt.IsZero())
	assert.True(t, r.Outcome.IsValid())
	assert.False(t, Outcome("maybe").IsValid())
}
