package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sabeehq11/CMI/internal/models"
	"github.com/Sabeehq11/CMI/internal/utils"
)

// Malformed ids never reach the database, so a nil handle is enough here.
func TestSessionRepo_MalformedIDIsNotFound(t *testing.T) {
	repo := NewSessionRepo(nil)

	for _, id := range []string{"abc", "sess-1", "2b0c8f3e", ""} {
		_, err := repo.GetWithRelations(context.Background(), id)
		require.Error(t, err, id)
		assert.ErrorIs(t, err, utils.ErrNotFound, id)

		err = repo.UpdateTranscript(context.Background(), id, []models.TranscriptEntry{})
		assert.ErrorIs(t, err, utils.ErrNotFound, id)
	}
}
