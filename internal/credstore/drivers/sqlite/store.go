// Package sqlite persists client credentials in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aussiebroadwan/pizzeria/internal/credstore"
	"github.com/aussiebroadwan/pizzeria/pkg/cryptox"
	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
	_ "modernc.org/sqlite"
)

// Store is a pizzasdk.CredentialStore backed by SQLite.
type Store struct {
	db    *sql.DB
	codec credstore.Codec
	now   func() time.Time
}

var _ pizzasdk.CredentialStore = (*Store)(nil)

// NewStore opens the database at dsn, applies migrations and prepares value
// sealing when masterKey is set.
func NewStore(ctx context.Context, dsn, masterKey string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One writer at a time; SQLite serializes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, now: time.Now}
	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	if err := s.initCodec(ctx, masterKey); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreFromDB wraps an already migrated database.
func NewStoreFromDB(ctx context.Context, db *sql.DB, masterKey string) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.initCodec(ctx, masterKey); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// initCodec loads the store's salt, creating it on first use.
func (s *Store) initCodec(ctx context.Context, masterKey string) error {
	if masterKey == "" {
		return nil
	}

	// The first process to open the database picks the salt; later ones,
	// including a concurrent opener that loses the insert, read it back.
	fresh, err := cryptox.NewSalt()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO store_meta (id, salt) VALUES (1, ?)`, fresh); err != nil {
		return fmt.Errorf("sqlite: store salt: %w", err)
	}

	var salt []byte
	if err := s.db.QueryRowContext(ctx, `SELECT salt FROM store_meta WHERE id = 1`).Scan(&salt); err != nil {
		return fmt.Errorf("sqlite: load salt: %w", err)
	}

	codec, err := credstore.NewCodec(masterKey, salt)
	if err != nil {
		return err
	}
	s.codec = codec
	return nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) Load(ctx context.Context) (pizzasdk.Credentials, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM client_state`)
	if err != nil {
		return pizzasdk.Credentials{}, fmt.Errorf("sqlite: load credentials: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, len(credstore.Keys))
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return pizzasdk.Credentials{}, fmt.Errorf("sqlite: load credentials: %w", err)
		}
		if values[name], err = s.codec.Decode(value); err != nil {
			return pizzasdk.Credentials{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return pizzasdk.Credentials{}, fmt.Errorf("sqlite: load credentials: %w", err)
	}

	return credstore.FromValues(values), nil
}

// Save replaces every stored key in one transaction.
func (s *Store) Save(ctx context.Context, creds pizzasdk.Credentials) error {
	values := credstore.ToValues(creds)
	now := s.now().UTC()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM client_state`); err != nil {
			return err
		}
		for _, key := range credstore.Keys {
			v, ok := values[key]
			if !ok {
				continue
			}
			enc, err := s.codec.Encode(v)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO client_state (name, value, updated_at) VALUES (?, ?, ?)`,
				key, enc, now,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: save credentials: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM client_state`); err != nil {
		return fmt.Errorf("sqlite: clear credentials: %w", err)
	}
	return nil
}
