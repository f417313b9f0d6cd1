package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facc/backup"
	"facc/config"
	"facc/store"
	"facc/utils"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StoreDriver = driver
	cfg.Environment = "test"
	cfg.DataFile = filepath.Join(dir, "db.json")
	cfg.DBPath = filepath.Join(dir, "data", "facc.db")
	return cfg
}

func TestOpenStore_SelectsSubstrate(t *testing.T) {
	ctx := context.Background()

	fileStore, err := OpenStore(ctx, testConfig(t, config.DriverFile))
	require.NoError(t, err)
	assert.Equal(t, "file", fileStore.Driver())
	assert.IsType(t, &backup.DocumentSnapshotter{}, NewSnapshotter(fileStore))

	sqlStore, err := OpenStore(ctx, testConfig(t, config.DriverSQLite))
	require.NoError(t, err)
	defer sqlStore.Close()
	assert.Equal(t, "sqlite", sqlStore.Driver())
	assert.IsType(t, &backup.SQLSnapshotter{}, NewSnapshotter(sqlStore))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(testConfig(t, "mongodb"))
	assert.Error(t, err)
}

func TestBootstrap_AddsMissingCollections(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewFileStore(filepath.Join(t.TempDir(), "db.json"))
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, func(doc *store.Document) error {
		doc.Delete(store.Notifications)
		doc.SetRaw(store.CompanySettings, []byte(`{"name":"Custom"}`))
		return nil
	}))

	require.NoError(t, Bootstrap(ctx, s))

	doc, err := s.Read(ctx)
	require.NoError(t, err)
	assert.True(t, doc.Has(store.Notifications))
	assert.JSONEq(t, `{"name":"Custom"}`, string(doc.Raw(store.CompanySettings)))
}

func TestSeedDefaultAdmin(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewFileStore(filepath.Join(t.TempDir(), "db.json"))
	require.NoError(t, err)

	require.NoError(t, SeedDefaultAdmin(ctx, s, "Admin@FACC.org", "secret"))
	require.NoError(t, SeedDefaultAdmin(ctx, s, "other@facc.org", "secret"))

	doc, err := s.Read(ctx)
	require.NoError(t, err)
	users, err := store.Decode[User](doc, store.Users)
	require.NoError(t, err)
	require.Len(t, users, 1)

	admin := users[0]
	assert.Equal(t, "admin@facc.org", admin.Email)
	assert.Equal(t, RoleSuperuser, admin.Role)
	assert.Empty(t, admin.Password)
	assert.True(t, utils.CheckPasswordHash("secret", admin.PasswordHash))
	assert.Empty(t, admin.Sanitized().PasswordHash)
}

func TestRequisitionHelpers(t *testing.T) {
	r := Requisition{Items: []RequisitionItem{{ItemNumber: 1}, {ItemNumber: 3}}}
	assert.True(t, r.HasItem(3))
	assert.False(t, r.HasItem(2))

	p := PaymentRequest{Accounts: []PaymentAccount{{Amount: 10.5}, {Amount: 4.5}}}
	assert.InDelta(t, 15.0, p.Total(), 1e-9)

	assert.True(t, IsValidRole(RolePresidencia))
	assert.False(t, IsValidRole("admin"))
}
