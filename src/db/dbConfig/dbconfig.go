package db

import (
	"database/sql"
	"errors"
	"os"
	"path"
)

// DbConfig is an SQL database together with how it was opened.
type DbConfig struct {
	Uri    string
	DB     *sql.DB
	Name   string
	Driver string
	opened bool
}

var ErrNotExist = errors.New("database does not exist")

// New opens the database at uri, creating it if needed, and applies the
// schemas in one transaction.
func New(driver string, schemas *[]string, uri string) (*DbConfig, error) {
	name := path.Base(uri)
	db, err := initDB(driver, schemas, uri)
	if err != nil {
		return nil, err
	}
	cfg := &DbConfig{
		DB:     db,
		Uri:    uri,
		Name:   name,
		Driver: driver,
		opened: true,
	}
	return cfg, nil
}

// OpenIfExist opens an existing database without touching its schema.
func OpenIfExist(driver string, uri string) (*DbConfig, error) {
	cfg := &DbConfig{
		Uri:    uri,
		Name:   path.Base(uri),
		Driver: driver,
	}
	if !cfg.DBIsExist() {
		return nil, ErrNotExist
	}
	if err := cfg.OpenDb(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initDB(driver string, schemas *[]string, uri string) (*sql.DB, error) {
	database, err := sql.Open(driver, uri)
	if err != nil {
		return nil, err
	}
	tx, err := database.Begin()
	if err != nil {
		database.Close()
		return nil, err
	}
	for _, schema := range *schemas {
		_, err := tx.Exec(schema)
		if err != nil {
			tx.Rollback()
			database.Close()
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func (cfg *DbConfig) DeleteDb() error {
	if err := cfg.CloseDb(); err != nil {
		return err
	}
	return os.Remove(cfg.Uri)
}

func (cfg *DbConfig) OpenDb() error {
	db, err := sql.Open(cfg.Driver, cfg.Uri)
	if err != nil {
		return err
	}
	cfg.DB = db
	cfg.opened = true
	return nil
}

func (cfg *DbConfig) CloseDb() error {
	if cfg.opened {
		err := cfg.DB.Close()
		if err != nil {
			return err
		}
		cfg.opened = false
	}
	return nil
}

func (cfg *DbConfig) DBIsOpened() bool {
	return cfg.opened
}

func (cfg *DbConfig) DBIsExist() bool {
	_, err := os.Stat(cfg.Uri)
	return !os.IsNotExist(err)
}

// InTx runs fn in a transaction, committing if it returns nil.
func (cfg *DbConfig) InTx(fn func(tx *sql.Tx) error) error {
	tx, err := cfg.DB.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
