package database

import (
	"path/filepath"

	"github.com/yggdrasil-network/rnsmesh/src/core"
	knowndestinationsdb "github.com/yggdrasil-network/rnsmesh/src/db/KnownDestinationsDB"
	pathtabledb "github.com/yggdrasil-network/rnsmesh/src/db/PathTableDB"
)

// Database holds the sqlite stores of a node.
type Database struct {
	Known  *knowndestinationsdb.KnownDestinationsDBConfig
	Paths  *pathtabledb.PathTableDBConfig
	Logger core.Logger
}

// Open opens or creates both databases inside dir. If withKnown is false
// only the path table is kept in sqlite and known destinations are left to
// the node's default file store.
func Open(dir string, withKnown bool, logger core.Logger) (*Database, error) {
	d := &Database{Logger: logger}
	var err error
	if withKnown {
		path := filepath.Join(dir, knowndestinationsdb.Name+".db")
		if d.Known, err = knowndestinationsdb.NewAt(path); err != nil {
			return nil, err
		}
	}
	path := filepath.Join(dir, pathtabledb.Name+".db")
	if d.Paths, err = pathtabledb.NewAt(path); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// Options returns the core options that make a node persist to these
// databases.
func (d *Database) Options() []core.SetupOption {
	var opts []core.SetupOption
	if d.Known != nil {
		opts = append(opts, core.KnownStore{KnownStore: d.Known})
	}
	if d.Paths != nil {
		opts = append(opts, core.PersistPaths{PathStore: d.Paths})
	}
	return opts
}

func (d *Database) Close() error {
	var first error
	if d.Known != nil {
		if err := d.Known.DbConfig.CloseDb(); err != nil {
			first = err
		}
	}
	if d.Paths != nil {
		if err := d.Paths.DbConfig.CloseDb(); err != nil && first == nil {
			first = err
		}
	}
	if d.Logger != nil {
		d.Logger.Infoln("Databases closed")
	}
	return first
}
