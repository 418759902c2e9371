package knowndestinationsdb

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	db "github.com/yggdrasil-network/rnsmesh/src/db/dbConfig"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
)

type KnownDestinationsDBConfig struct {
	DbConfig *db.DbConfig
	name     string
}

var (
	Name = "KnownDestinations"
	Path = ""
)

var schemas = []string{
	`CREATE TABLE IF NOT EXISTS known_destinations (
		Hash BLOB NOT NULL PRIMARY KEY,
		Seen INTEGER,
		PacketHash BLOB,
		PublicKey BLOB NOT NULL,
		AppData BLOB
	);`}

func dbPath() string {
	if Path != "" {
		return Path
	}
	dir, _ := os.Getwd()
	return filepath.Join(dir, fmt.Sprintf("%s.db", Name))
}

// New opens or creates the database at Path, or in the working directory.
func New() (*KnownDestinationsDBConfig, error) {
	return NewAt(dbPath())
}

// NewAt opens or creates the database at path.
func NewAt(path string) (*KnownDestinationsDBConfig, error) {
	dbcfg, err := db.New("sqlite3", &schemas, path)
	if err != nil {
		return nil, err
	}
	return &KnownDestinationsDBConfig{name: Name, DbConfig: dbcfg}, nil
}

// Open opens an existing database.
func Open() (*KnownDestinationsDBConfig, error) {
	dbcfg, err := db.OpenIfExist("sqlite3", dbPath())
	if err != nil {
		return nil, err
	}
	return &KnownDestinationsDBConfig{name: Name, DbConfig: dbcfg}, nil
}

const insertQuery = "INSERT OR REPLACE INTO known_destinations (Hash, Seen, PacketHash, PublicKey, AppData) VALUES (?, ?, ?, ?, ?)"

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insert(e execer, dest address.Hash, entry identity.KnownEntry) (sql.Result, error) {
	return e.Exec(insertQuery,
		dest[:],
		entry.Seen.UnixNano(),
		entry.PacketHash,
		entry.PublicKey,
		entry.AppData)
}

func (cfg *KnownDestinationsDBConfig) Add(dest address.Hash, entry identity.KnownEntry) (sql.Result, error) {
	return insert(cfg.DbConfig.DB, dest, entry)
}

func (cfg *KnownDestinationsDBConfig) Remove(dest address.Hash) error {
	_, err := cfg.DbConfig.DB.Exec("DELETE FROM known_destinations WHERE Hash = ?", dest[:])
	return err
}

// Get returns the entry for dest. The boolean is false if there is none.
func (cfg *KnownDestinationsDBConfig) Get(dest address.Hash) (identity.KnownEntry, bool, error) {
	var entry identity.KnownEntry
	var seen int64
	err := cfg.DbConfig.DB.QueryRow(
		"SELECT Seen, PacketHash, PublicKey, AppData FROM known_destinations WHERE Hash = ?",
		dest[:],
	).Scan(&seen, &entry.PacketHash, &entry.PublicKey, &entry.AppData)
	if err == sql.ErrNoRows {
		return entry, false, nil
	}
	if err != nil {
		return entry, false, err
	}
	entry.Seen = time.Unix(0, seen)
	return entry, true, nil
}

func (cfg *KnownDestinationsDBConfig) Count() (int, error) {
	var count int
	err := cfg.DbConfig.DB.QueryRow("SELECT COUNT(*) FROM known_destinations").Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SaveKnown writes all entries in one transaction, in hash order.
func (cfg *KnownDestinationsDBConfig) SaveKnown(entries map[address.Hash]identity.KnownEntry) error {
	keys := make([]address.Hash, 0, len(entries))
	for dest := range entries {
		keys = append(keys, dest)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	return cfg.DbConfig.InTx(func(tx *sql.Tx) error {
		for _, dest := range keys {
			if _, err := insert(tx, dest, entries[dest]); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadKnown reads every entry. Rows with a malformed hash are skipped.
func (cfg *KnownDestinationsDBConfig) LoadKnown() (map[address.Hash]identity.KnownEntry, error) {
	rows, err := cfg.DbConfig.DB.Query("SELECT Hash, Seen, PacketHash, PublicKey, AppData FROM known_destinations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make(map[address.Hash]identity.KnownEntry)
	for rows.Next() {
		var hash []byte
		var seen int64
		var entry identity.KnownEntry
		if err := rows.Scan(&hash, &seen, &entry.PacketHash, &entry.PublicKey, &entry.AppData); err != nil {
			return nil, err
		}
		dest, err := address.HashFromBytes(hash)
		if err != nil {
			continue
		}
		entry.Seen = time.Unix(0, seen)
		entries[dest] = entry
	}
	return entries, rows.Err()
}

var _ identity.KnownStore = (*KnownDestinationsDBConfig)(nil)
