// Package otp stores one-time sign-in codes and admin sessions in Redis.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	codePrefix    = "otp:"
	sessionPrefix = "session:"
)

// Store keeps bcrypt-hashed sign-in codes with a short TTL and active
// session identifiers for revocation.
type Store struct {
	client  *redis.Client
	codeTTL time.Duration
}

func NewStore(redisURL string, codeTTL time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewStoreWithClient(client, codeTTL), nil
}

func NewStoreWithClient(client *redis.Client, codeTTL time.Duration) *Store {
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}
	return &Store{client: client, codeTTL: codeTTL}
}

// GenerateCode returns a random 6-digit sign-in code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// SaveCode stores the bcrypt hash of a sign-in code for email. Any
// previous code for the same email is replaced.
func (s *Store) SaveCode(ctx context.Context, email, code string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}
	if err := s.client.Set(ctx, codePrefix+email, hash, s.codeTTL).Err(); err != nil {
		return fmt.Errorf("save code: %w", err)
	}
	return nil
}

// ConsumeCode checks code against the stored hash and deletes it on
// success, so a code can be used exactly once. A missing, expired or
// mismatched code reports false without detail.
func (s *Store) ConsumeCode(ctx context.Context, email, code string) (bool, error) {
	hash, err := s.client.Get(ctx, codePrefix+email).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup code: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		return false, nil
	}
	if err := s.client.Del(ctx, codePrefix+email).Err(); err != nil {
		return false, fmt.Errorf("consume code: %w", err)
	}
	return true, nil
}

// SaveSession records an issued session token id until it expires.
func (s *Store) SaveSession(ctx context.Context, jti, email string, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionPrefix+jti, email, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SessionActive reports whether a session id is still valid (issued and
// not revoked or expired).
func (s *Store) SessionActive(ctx context.Context, jti string) (bool, error) {
	_, err := s.client.Get(ctx, sessionPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup session: %w", err)
	}
	return true, nil
}

// RevokeSession drops a session id, signing the admin out everywhere.
func (s *Store) RevokeSession(ctx context.Context, jti string) error {
	if err := s.client.Del(ctx, sessionPrefix+jti).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
