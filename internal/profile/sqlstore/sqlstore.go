// Package sqlstore persists tuning results to a SQL database instead of
// the flat JSON override file, for installations that already run one
// of the drivers database.Connect dials: the DSN-building switch and
// open/ping sequence here follow that same shape, adapted to the single
// "upsert a profile row, read it back" access pattern the dispatcher's
// tuning path needs instead of general query execution.
package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"isaac/internal/forest"
	"isaac/internal/ierrors"
)

// Store is a SQL-backed profile table. It holds one row per
// (device_key, kind, dtype), the same key triple profile.Database
// indexes in memory.
type Store struct {
	db *sql.DB
}

// Row is one persisted profile entry, the SQL-table mirror of
// profile.Entry plus its key columns.
type Row struct {
	DeviceKey string
	Kind      string
	Dtype     string
	Profiles  [][]int64
	Predictor *forest.Forest
	UpdatedAt time.Time
}

// Open builds a DSN for dbType the way database.Connect does and opens
// a connection, creating the profiles table if it does not exist.
func Open(dbType, host string, port int, database, username, password string) (*Store, error) {
	var dsn string
	switch strings.ToLower(dbType) {
	case "mysql":
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", username, password, host, port, database)
	case "postgres", "postgresql":
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable", host, port, username, password, database)
	case "sqlite3", "sqlite":
		dsn = database
	case "sqlserver", "mssql":
		dsn = fmt.Sprintf("server=%s;port=%d;user id=%s;password=%s;database=%s", host, port, username, password, database)
	default:
		return nil, ierrors.New(ierrors.OperationNotSupported, "sqlstore: unsupported database type %q", dbType)
	}

	conn, err := sql.Open(dbType, dsn)
	if err != nil {
		return nil, ierrors.Wrap(ierrors.RuntimeError, err, "sqlstore: open %s", dbType)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, ierrors.Wrap(ierrors.RuntimeError, err, "sqlstore: ping %s", dbType)
	}

	s := &Store{db: conn}
	if err := s.ensureSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS isaac_profiles (
			device_key TEXT NOT NULL,
			kind       TEXT NOT NULL,
			dtype      TEXT NOT NULL,
			profiles   TEXT NOT NULL,
			predictor  TEXT,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (device_key, kind, dtype)
		)`)
	if err != nil {
		return ierrors.Wrap(ierrors.RuntimeError, err, "sqlstore: create schema")
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// Upsert records a tuning winner for (deviceKey, kind, dtype), replacing
// any earlier row for that key. Execute does not read this store; a
// caller loads rows back with Lookup.
func (s *Store) Upsert(row Row) error {
	profilesJSON, err := json.Marshal(row.Profiles)
	if err != nil {
		return ierrors.Wrap(ierrors.RuntimeError, err, "sqlstore: marshal profiles")
	}
	var predictorJSON []byte
	if row.Predictor != nil {
		predictorJSON, err = json.Marshal(row.Predictor)
		if err != nil {
			return ierrors.Wrap(ierrors.RuntimeError, err, "sqlstore: marshal predictor")
		}
	}

	_, err = s.db.Exec(`
		INSERT INTO isaac_profiles (device_key, kind, dtype, profiles, predictor, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_key, kind, dtype) DO UPDATE SET
			profiles = excluded.profiles,
			predictor = excluded.predictor,
			updated_at = excluded.updated_at`,
		row.DeviceKey, row.Kind, row.Dtype, string(profilesJSON), nullableString(predictorJSON), row.UpdatedAt)
	if err != nil {
		return ierrors.Wrap(ierrors.RuntimeError, err, "sqlstore: upsert %s/%s/%s", row.DeviceKey, row.Kind, row.Dtype)
	}
	return nil
}

// Lookup reads back a single row, if one has been recorded.
func (s *Store) Lookup(deviceKey, kind, dtype string) (Row, bool, error) {
	row := Row{DeviceKey: deviceKey, Kind: kind, Dtype: dtype}
	var profilesJSON string
	var predictorJSON sql.NullString
	err := s.db.QueryRow(
		`SELECT profiles, predictor, updated_at FROM isaac_profiles WHERE device_key = ? AND kind = ? AND dtype = ?`,
		deviceKey, kind, dtype,
	).Scan(&profilesJSON, &predictorJSON, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, ierrors.Wrap(ierrors.RuntimeError, err, "sqlstore: lookup %s/%s/%s", deviceKey, kind, dtype)
	}

	if err := json.Unmarshal([]byte(profilesJSON), &row.Profiles); err != nil {
		return Row{}, false, ierrors.Wrap(ierrors.RuntimeError, err, "sqlstore: unmarshal profiles")
	}
	if predictorJSON.Valid && predictorJSON.String != "" {
		var f forest.Forest
		if err := json.Unmarshal([]byte(predictorJSON.String), &f); err != nil {
			return Row{}, false, ierrors.Wrap(ierrors.RuntimeError, err, "sqlstore: unmarshal predictor")
		}
		row.Predictor = &f
	}
	return row, true, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
