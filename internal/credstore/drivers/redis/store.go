// Package redis persists client credentials in Redis so a session outlives
// the process and can be picked up by a later one.
//
// Renewals are coalesced per Gateway, inside one process. Processes that
// share a prefix at the same time can each call /auth/refresh for the same
// rejected credential; give each concurrently running client its own prefix.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/pizzeria/internal/credstore"
	"github.com/aussiebroadwan/pizzeria/pkg/cryptox"
	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "pizzeria"

// Store is a pizzasdk.CredentialStore backed by Redis.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
	codec  credstore.Codec
}

var _ pizzasdk.CredentialStore = (*Store)(nil)

// NewStore wraps rdb. Values are sealed when masterKey is set; the salt is
// kept in Redis next to them.
func NewStore(ctx context.Context, rdb redis.UniversalClient, prefix, masterKey string) (*Store, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	s := &Store{rdb: rdb, prefix: prefix}

	if masterKey != "" {
		salt, err := s.salt(ctx)
		if err != nil {
			return nil, err
		}
		if s.codec, err = credstore.NewCodec(masterKey, salt); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) key(name string) string {
	return s.prefix + ":" + name
}

func (s *Store) keys() []string {
	out := make([]string, len(credstore.Keys))
	for i, k := range credstore.Keys {
		out[i] = s.key(k)
	}
	return out
}

// salt returns the stored salt, racing other clients with SETNX to create it.
func (s *Store) salt(ctx context.Context) ([]byte, error) {
	fresh, err := cryptox.NewSalt()
	if err != nil {
		return nil, err
	}
	if err := s.rdb.SetNX(ctx, s.key("salt"), fresh, 0).Err(); err != nil {
		return nil, fmt.Errorf("redis: store salt: %w", err)
	}
	salt, err := s.rdb.Get(ctx, s.key("salt")).Bytes()
	if err != nil {
		return nil, fmt.Errorf("redis: load salt: %w", err)
	}
	return salt, nil
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Load(ctx context.Context) (pizzasdk.Credentials, error) {
	raw, err := s.rdb.MGet(ctx, s.keys()...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return pizzasdk.Credentials{}, fmt.Errorf("redis: load credentials: %w", err)
	}

	values := make(map[string]string, len(credstore.Keys))
	for i, v := range raw {
		str, ok := v.(string)
		if !ok {
			continue
		}
		if values[credstore.Keys[i]], err = s.codec.Decode(str); err != nil {
			return pizzasdk.Credentials{}, err
		}
	}
	return credstore.FromValues(values), nil
}

// Save replaces every stored key in one MULTI/EXEC.
func (s *Store) Save(ctx context.Context, creds pizzasdk.Credentials) error {
	values := credstore.ToValues(creds)
	encoded := make(map[string]string, len(values))
	for k, v := range values {
		enc, err := s.codec.Encode(v)
		if err != nil {
			return err
		}
		encoded[s.key(k)] = enc
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.keys()...)
		for k, v := range encoded {
			pipe.Set(ctx, k, v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: save credentials: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.keys()...).Err(); err != nil {
		return fmt.Errorf("redis: clear credentials: %w", err)
	}
	return nil
}
