package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migration is one embedded schema change. Version is the numeric file
// prefix; 000 creates schema_migrations itself.
type Migration struct {
	Version string
	File    string
}

// Migrations lists the embedded migrations in application order.
func Migrations() ([]Migration, error) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}
	var out []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		version, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, errors.Newf("migration %s has no version prefix", name)
		}
		out = append(out, Migration{Version: version, File: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Pending lists the migrations db has not applied yet.
func Pending(db *sql.DB) ([]Migration, error) {
	all, err := Migrations()
	if err != nil {
		return nil, err
	}
	applied, err := appliedVersions(db)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, m := range all {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Migrate applies every pending migration, each in its own transaction.
// log may be nil.
func Migrate(db *sql.DB, log *zap.SugaredLogger) error {
	log = logger.Nop(log)
	pending, err := Pending(db)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Debugw("schema up to date")
		return nil
	}

	start := time.Now()
	for _, m := range pending {
		if err := apply(db, m); err != nil {
			return err
		}
		log.Infow("migration applied", logger.FieldFile, m.File)
	}
	log.Infow("migrations complete",
		logger.FieldCount, len(pending),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return nil
}

func appliedVersions(db *sql.DB) (map[string]bool, error) {
	applied := make(map[string]bool)

	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`).Scan(&tables); err != nil {
		return nil, errors.Wrap(err, "check schema_migrations")
	}
	if tables == 0 {
		return applied, nil
	}

	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, errors.Wrap(err, "list applied migrations")
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "scan applied migration")
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func apply(db *sql.DB, m Migration) error {
	body, err := migrations.ReadFile(path.Join("migrations", m.File))
	if err != nil {
		return errors.Wrapf(err, "read %s", m.File)
	}
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin %s", m.File)
	}
	if _, err := tx.Exec(string(body)); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "execute %s", m.File)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "record %s", m.File)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit %s", m.File)
	}
	return nil
}
