package store_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/halvar/credkeeper/pkg/clierr"
	"github.com/halvar/credkeeper/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	base := t.TempDir()
	s, err := store.New(filepath.Join(base, "state"), filepath.Join(base, "backups"))
	require.NoError(t, err)
	return s
}

func sampleState(refreshedAt time.Time) *store.AuthState {
	return &store.AuthState{
		Cookies: []store.Cookie{
			{Name: "sid", Value: "abc", Domain: ".example.com", Path: "/", Expires: refreshedAt.AddDate(0, 0, 30).Unix(), Secure: true, HTTPOnly: true, SameSite: "Lax"},
		},
		Snapshot: &store.StorageSnapshot{
			Origins: []store.OriginState{{Origin: "https://example.com", LocalStorage: []store.KV{{Name: "token", Value: "t-1"}}}},
		},
		LastRefreshedAt: refreshedAt,
	}
}

func TestLoad_AbsentIsNotAnError(t *testing.T) {
	s := newTestStore(t)

	state, err := s.Load("northline", "")

	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestSaveThenLoad_Roundtrip(t *testing.T) {
	s := newTestStore(t)
	refreshedAt := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.Save("northline", "", sampleState(refreshedAt)))

	loaded, err := s.Load("northline", "")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.LastRefreshedAt.Equal(refreshedAt))
	require.Len(t, loaded.Cookies, 1)
	assert.Equal(t, "sid", loaded.Cookies[0].Name)
	require.NotNil(t, loaded.Snapshot)
	assert.Equal(t, "t-1", loaded.Snapshot.LocalStorageValue("token"))
}

func TestSave_RejectsStateWithoutTimestamp(t *testing.T) {
	s := newTestStore(t)

	err := s.Save("northline", "", &store.AuthState{})

	require.Error(t, err)
	assert.Equal(t, clierr.Storage, clierr.TypeOf(err))
}

func TestSave_BackupBeforeMutate(t *testing.T) {
	s := newTestStore(t)
	first := sampleState(time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Second))
	require.NoError(t, s.Save("northline", "", first))

	// No backup from the initial save since nothing existed before it.
	handles, err := s.Backups("northline", "")
	require.NoError(t, err)
	assert.Empty(t, handles)

	second := sampleState(time.Now().UTC().Truncate(time.Second))
	second.Cookies[0].Value = "new-value"
	require.NoError(t, s.Save("northline", "", second))

	handles, err = s.Backups("northline", "")
	require.NoError(t, err)
	require.Len(t, handles, 1)

	// The backup must contain the pre-save state.
	require.NoError(t, s.Restore("northline", "", handles[0]))
	restored, err := s.Load("northline", "")
	require.NoError(t, err)
	assert.Equal(t, "abc", restored.Cookies[0].Value)
	assert.True(t, restored.LastRefreshedAt.Equal(first.LastRefreshedAt))
}

func TestBackup_NoStateIsNoOp(t *testing.T) {
	s := newTestStore(t)

	handle, err := s.Backup("northline", "")

	require.NoError(t, err)
	assert.Nil(t, handle)
}

func TestRestore_RefusesTamperedBackup(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("northline", "", sampleState(time.Now().UTC())))

	handle, err := s.Backup("northline", "")
	require.NoError(t, err)
	require.NotNil(t, handle)

	// Tamper with the backed-up cookie file.
	require.NoError(t, os.WriteFile(filepath.Join(handle.Dir, "cookies.json"), []byte("[]"), 0o600))

	err = s.Restore("northline", "", *handle)
	require.Error(t, err)
	assert.Equal(t, clierr.Storage, clierr.TypeOf(err))
	assert.Contains(t, err.Error(), "checksum")
}

func TestAccountIsolation(t *testing.T) {
	s := newTestStore(t)
	stateA := sampleState(time.Now().UTC().Truncate(time.Second))
	stateB := sampleState(time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Second))
	stateB.Cookies[0].Value = "value-b"

	require.NoError(t, s.Save("harborview", "alpha", stateA))
	require.NoError(t, s.Save("harborview", "beta", stateB))

	// Overwrite alpha; beta must be untouched, including its backups.
	updated := sampleState(time.Now().UTC().Truncate(time.Second))
	updated.Cookies[0].Value = "value-a2"
	require.NoError(t, s.Save("harborview", "alpha", updated))

	loadedB, err := s.Load("harborview", "beta")
	require.NoError(t, err)
	assert.Equal(t, "value-b", loadedB.Cookies[0].Value)

	backupsB, err := s.Backups("harborview", "beta")
	require.NoError(t, err)
	assert.Empty(t, backupsB, "refreshing one account must not create backups for another")

	backupsA, err := s.Backups("harborview", "alpha")
	require.NoError(t, err)
	assert.Len(t, backupsA, 1)
}

func TestPrune_KeepsNewestPerTarget(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("crestfund", "", sampleState(time.Now().UTC())))

	// Two backups, both immediately older than any past cutoff.
	_, err := s.Backup("crestfund", "")
	require.NoError(t, err)
	_, err = s.Backup("crestfund", "")
	require.NoError(t, err)

	handles, err := s.Backups("crestfund", "")
	require.NoError(t, err)
	require.Len(t, handles, 2)

	// A zero retention window makes every backup older than the cutoff;
	// the newest must survive anyway.
	removed, err := s.Prune(0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	remaining, err := s.Backups("crestfund", "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, handles[0].Dir, remaining[0].Dir, "the newest backup must be preserved")
}

func TestSave_LegacyCookieFileStillLoads(t *testing.T) {
	base := t.TempDir()
	stateDir := filepath.Join(base, "state")
	s, err := store.New(stateDir, filepath.Join(base, "backups"))
	require.NoError(t, err)
	require.NoError(t, s.Save("crestfund", "", sampleState(time.Now().UTC())))

	// Rewrite the cookie file using the historical expirationDate spelling.
	legacy := `[{"name":"sid","value":"legacy","domain":".crestfund.example","path":"/","expirationDate":1767225600}]`
	path := filepath.Join(stateDir, "crestfund", "default", "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	loaded, err := s.Load("crestfund", "")
	require.NoError(t, err)
	require.Len(t, loaded.Cookies, 1)
	assert.Equal(t, "legacy", loaded.Cookies[0].Value)
	assert.Equal(t, int64(1767225600), loaded.Cookies[0].Expires)
}
