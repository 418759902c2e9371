package db_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	knowndestinationsdb "github.com/yggdrasil-network/rnsmesh/src/db/KnownDestinationsDB"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
)

func newKnownDB(t *testing.T) (*knowndestinationsdb.KnownDestinationsDBConfig, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	cfg, err := knowndestinationsdb.NewAt(filepath.Join(t.TempDir(), "known.db"))
	require.NoError(t, err)
	require.NoError(t, cfg.DbConfig.CloseDb())
	cfg.DbConfig.DB = mockDB
	return cfg, mock
}

func testEntry(seen time.Time) identity.KnownEntry {
	return identity.KnownEntry{
		Seen:       seen,
		PacketHash: []byte{1, 2, 3},
		PublicKey:  identity.New().PublicKey(),
		AppData:    []byte("app"),
	}
}

func TestInsertKnownDestination(t *testing.T) {
	cfg, mock := newKnownDB(t)
	var dest address.Hash
	dest[0] = 0xaa
	entry := testEntry(time.Unix(100, 0))

	mock.ExpectExec("INSERT OR REPLACE INTO known_destinations").
		WithArgs(dest[:], entry.Seen.UnixNano(), entry.PacketHash, entry.PublicKey, entry.AppData).
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := cfg.Add(dest, entry)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectKnownDestination(t *testing.T) {
	cfg, mock := newKnownDB(t)
	var dest address.Hash
	dest[0] = 0xbb
	entry := testEntry(time.Unix(200, 5))

	rows := sqlmock.NewRows([]string{"Seen", "PacketHash", "PublicKey", "AppData"}).
		AddRow(entry.Seen.UnixNano(), entry.PacketHash, entry.PublicKey, entry.AppData)
	mock.ExpectQuery("SELECT (.+) FROM known_destinations WHERE Hash = \\?").
		WithArgs(dest[:]).
		WillReturnRows(rows)

	got, ok, err := cfg.Get(dest)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Seen.Equal(entry.Seen))
	require.Equal(t, entry.PublicKey, got.PublicKey)

	mock.ExpectQuery("SELECT (.+) FROM known_destinations WHERE Hash = \\?").
		WithArgs(dest[:]).
		WillReturnRows(sqlmock.NewRows([]string{"Seen", "PacketHash", "PublicKey", "AppData"}))
	_, ok, err = cfg.Get(dest)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveKnownDestinations(t *testing.T) {
	cfg, mock := newKnownDB(t)
	var a, b address.Hash
	a[0], b[0] = 1, 2
	ea, eb := testEntry(time.Unix(1, 0)), testEntry(time.Unix(2, 0))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT OR REPLACE INTO known_destinations").
		WithArgs(a[:], ea.Seen.UnixNano(), ea.PacketHash, ea.PublicKey, ea.AppData).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT OR REPLACE INTO known_destinations").
		WithArgs(b[:], eb.Seen.UnixNano(), eb.PacketHash, eb.PublicKey, eb.AppData).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := cfg.SaveKnown(map[address.Hash]identity.KnownEntry{b: eb, a: ea})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveKnownDestinationsRollback(t *testing.T) {
	cfg, mock := newKnownDB(t)
	var a address.Hash
	failure := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT OR REPLACE INTO known_destinations").WillReturnError(failure)
	mock.ExpectRollback()

	err := cfg.SaveKnown(map[address.Hash]identity.KnownEntry{a: testEntry(time.Now())})
	require.ErrorIs(t, err, failure)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadKnownDestinations(t *testing.T) {
	cfg, mock := newKnownDB(t)
	var a address.Hash
	a[0] = 9
	e := testEntry(time.Unix(3, 0))
	rows := sqlmock.NewRows([]string{"Hash", "Seen", "PacketHash", "PublicKey", "AppData"}).
		AddRow(a[:], e.Seen.UnixNano(), e.PacketHash, e.PublicKey, e.AppData).
		AddRow([]byte{1, 2}, e.Seen.UnixNano(), e.PacketHash, e.PublicKey, e.AppData)
	mock.ExpectQuery("SELECT (.+) FROM known_destinations").WillReturnRows(rows)

	entries, err := cfg.LoadKnown()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, e.AppData, entries[a].AppData)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountKnownDestinations(t *testing.T) {
	cfg, mock := newKnownDB(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM known_destinations").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	count, err := cfg.Count()
	require.NoError(t, err)
	require.Equal(t, 7, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKnownDestinationsSqlite(t *testing.T) {
	cfg, err := knowndestinationsdb.NewAt(filepath.Join(t.TempDir(), "known.db"))
	require.NoError(t, err)
	defer cfg.DbConfig.CloseDb()

	id := identity.New()
	var dest address.Hash
	dest[3] = 3
	known := identity.NewKnown(cfg)
	require.NoError(t, known.Remember(dest, []byte("ph"), id.PublicKey(), []byte("app")))
	require.NoError(t, known.Save(context.Background()))

	count, err := cfg.Count()
	require.NoError(t, err)
	require.Equal(t, 1, count)

	reloaded := identity.NewKnown(cfg)
	require.NoError(t, reloaded.Load())
	recalled, ok := reloaded.Recall(dest)
	require.True(t, ok)
	require.Equal(t, id.Hash(), recalled.Hash())

	require.NoError(t, cfg.Remove(dest))
	count, err = cfg.Count()
	require.NoError(t, err)
	require.Equal(t, 0, count)
}
