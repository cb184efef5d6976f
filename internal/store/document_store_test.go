package store_test

import (
	"testing"

	"github.com/archon-dev/archon/internal/models"
	"github.com/archon-dev/archon/internal/store"
	"github.com/archon-dev/archon/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentStore(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	first, err := s.CreateJob("scan", 0)
	require.NoError(t, err)
	second, err := s.CreateJob("scan", 0)
	require.NoError(t, err)

	t.Run("UpsertInsertsAndUpdates", func(t *testing.T) {
		doc := &models.Document{JobID: first.ID, Path: "/docs/report.pdf", Kind: models.KindPDF, Size: 10, SHA1: "aaa"}
		id, err := s.UpsertDocument(doc)
		if err != nil {
			t.Fatalf("Failed to upsert document: %v", err)
		}
		assert.NotZero(t, id)
		assert.False(t, doc.IndexedAt.IsZero())

		again := &models.Document{JobID: second.ID, Path: "/docs/report.pdf", Kind: models.KindPDF, Size: 20, SHA1: "bbb"}
		id2, err := s.UpsertDocument(again)
		require.NoError(t, err)
		assert.Equal(t, id, id2, "same path keeps its row")

		count, err := s.CountDocuments()
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("ListDocumentsByJob", func(t *testing.T) {
		_, err := s.UpsertDocument(&models.Document{JobID: second.ID, Path: "/docs/a.txt", Kind: models.KindText, Size: 3, SHA1: "ccc"})
		require.NoError(t, err)

		docs, err := s.ListDocuments(second.ID)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "/docs/a.txt", docs[0].Path)
		assert.Equal(t, "/docs/report.pdf", docs[1].Path)
		assert.Equal(t, int64(20), docs[1].Size)
		assert.Equal(t, second.ID, docs[1].JobID)

		docs, err = s.ListDocuments(first.ID)
		require.NoError(t, err)
		assert.Empty(t, docs, "re-indexed document moved to the newer job")
	})

	t.Run("DocumentWithoutJob", func(t *testing.T) {
		_, err := s.UpsertDocument(&models.Document{Path: "/docs/loose.eml", Kind: models.KindEmail, SHA1: "ddd"})
		assert.NoError(t, err)
	})
}
