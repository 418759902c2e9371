package pathtabledb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yggdrasil-network/rnsmesh/src/address"
	"github.com/yggdrasil-network/rnsmesh/src/core"
	db "github.com/yggdrasil-network/rnsmesh/src/db/dbConfig"
	"github.com/yggdrasil-network/rnsmesh/src/identity"
)

type PathTableDBConfig struct {
	DbConfig *db.DbConfig
	name     string
}

var (
	Name = "PathTable"
	Path = ""
)

var schemas = []string{
	`CREATE TABLE IF NOT EXISTS path_table (
		Destination BLOB NOT NULL PRIMARY KEY,
		NextHop BLOB,
		Hops INTEGER,
		Timestamp INTEGER,
		Expires INTEGER,
		RandomBlobs BLOB,
		PacketHash BLOB,
		Interface TEXT,
		Announce BLOB
	);`}

func dbPath() string {
	if Path != "" {
		return Path
	}
	dir, _ := os.Getwd()
	return filepath.Join(dir, fmt.Sprintf("%s.db", Name))
}

// New opens or creates the database at Path, or in the working directory.
func New() (*PathTableDBConfig, error) {
	return NewAt(dbPath())
}

// NewAt opens or creates the database at path.
func NewAt(path string) (*PathTableDBConfig, error) {
	dbcfg, err := db.New("sqlite3", &schemas, path)
	if err != nil {
		return nil, err
	}
	return &PathTableDBConfig{name: Name, DbConfig: dbcfg}, nil
}

func packBlobs(blobs []identity.RandomHash) []byte {
	out := make([]byte, 0, len(blobs)*len(identity.RandomHash{}))
	for _, b := range blobs {
		out = append(out, b[:]...)
	}
	return out
}

func unpackBlobs(b []byte) []identity.RandomHash {
	var blobs []identity.RandomHash
	var r identity.RandomHash
	for len(b) >= len(r) {
		copy(r[:], b)
		blobs = append(blobs, r)
		b = b[len(r):]
	}
	return blobs
}

const insertQuery = `INSERT OR REPLACE INTO path_table
	(Destination, NextHop, Hops, Timestamp, Expires, RandomBlobs, PacketHash, Interface, Announce)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (cfg *PathTableDBConfig) Add(r core.PathRecord) (sql.Result, error) {
	return cfg.DbConfig.DB.Exec(insertQuery, args(r)...)
}

func args(r core.PathRecord) []any {
	return []any{
		r.Destination[:],
		r.NextHop[:],
		int(r.Hops),
		r.Timestamp.UnixNano(),
		r.Expires.UnixNano(),
		packBlobs(r.RandomBlobs),
		r.PacketHash,
		r.Interface,
		r.Announce,
	}
}

func (cfg *PathTableDBConfig) Remove(dest address.Hash) error {
	_, err := cfg.DbConfig.DB.Exec("DELETE FROM path_table WHERE Destination = ?", dest[:])
	return err
}

func (cfg *PathTableDBConfig) Count() (int, error) {
	var count int
	err := cfg.DbConfig.DB.QueryRow("SELECT COUNT(*) FROM path_table").Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SavePaths replaces the stored table with records.
func (cfg *PathTableDBConfig) SavePaths(records []core.PathRecord) error {
	return cfg.DbConfig.InTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM path_table"); err != nil {
			return err
		}
		for _, r := range records {
			if _, err := tx.Exec(insertQuery, args(r)...); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadPaths reads the stored table. Rows with malformed hashes are skipped.
func (cfg *PathTableDBConfig) LoadPaths() ([]core.PathRecord, error) {
	rows, err := cfg.DbConfig.DB.Query(`SELECT Destination, NextHop, Hops, Timestamp, Expires,
		RandomBlobs, PacketHash, Interface, Announce FROM path_table`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []core.PathRecord
	for rows.Next() {
		var dest, next, blobs []byte
		var hops int
		var ts, expires int64
		var r core.PathRecord
		if err := rows.Scan(&dest, &next, &hops, &ts, &expires, &blobs, &r.PacketHash, &r.Interface, &r.Announce); err != nil {
			return nil, err
		}
		if r.Destination, err = address.HashFromBytes(dest); err != nil {
			continue
		}
		if r.NextHop, err = address.HashFromBytes(next); err != nil {
			continue
		}
		r.Hops = uint8(hops)
		r.Timestamp = time.Unix(0, ts)
		r.Expires = time.Unix(0, expires)
		r.RandomBlobs = unpackBlobs(blobs)
		records = append(records, r)
	}
	return records, rows.Err()
}

var _ core.PathStore = (*PathTableDBConfig)(nil)
