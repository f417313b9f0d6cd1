package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"facc/store"
)

func newSQLStore(t *testing.T) *store.SQLStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "facc.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s, err := store.NewSQLStore(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStore_SeedsInitialDocument(t *testing.T) {
	s := newSQLStore(t)

	doc, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, store.InitialDocument().Names(), doc.Names())
	assert.Equal(t, "sqlite", s.Driver())

	var settings map[string]any
	require.NoError(t, store.DecodeObject(doc, store.CompanySettings, &settings))
	assert.Equal(t, "0491506385001", settings["ruc"])
}

func TestSQLStore_RoundTrip(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()

	for _, name := range []string{"uno", "dos", "tres"} {
		require.NoError(t, store.Append(ctx, s, store.Providers, &provider{Name: name}))
	}
	require.NoError(t, s.Update(ctx, func(doc *store.Document) error {
		doc.SetRaw("extra", json.RawMessage(`[{"k":"v"}]`))
		return nil
	}))

	doc, err := s.Read(ctx)
	require.NoError(t, err)
	providers, err := store.Decode[provider](doc, store.Providers)
	require.NoError(t, err)
	require.Len(t, providers, 3)
	assert.Equal(t, []string{"uno", "dos", "tres"}, []string{providers[0].Name, providers[1].Name, providers[2].Name})
	assert.JSONEq(t, `[{"k":"v"}]`, string(doc.Raw("extra")))
}

func TestSQLStore_WriteDropsRemovedEntries(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(doc *store.Document) error {
		doc.Delete(store.Notifications)
		return nil
	}))

	doc, err := s.Read(ctx)
	require.NoError(t, err)
	assert.False(t, doc.Has(store.Notifications))
	require.NoError(t, s.Exclusive(ctx, func(db *gorm.DB) error {
		assert.False(t, db.Migrator().HasTable(store.Notifications))
		return nil
	}))
}

func TestSQLStore_DeleteAndReinsertKeepsSequence(t *testing.T) {
	s := newSQLStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, s, store.Providers, &provider{Name: "a"}))
	require.NoError(t, store.Append(ctx, s, store.Providers, &provider{Name: "b"}))
	require.NoError(t, store.DeleteByID(ctx, s, store.Providers, 2))

	p := &provider{Name: "c"}
	require.NoError(t, store.Append(ctx, s, store.Providers, p))
	assert.EqualValues(t, 3, p.ID)
}
