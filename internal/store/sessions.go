package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"adchat/internal/kv"
)

const (
	// VerifyTTL bounds the window in which an issued code can be used.
	VerifyTTL = 600 * time.Second
	// MaxAttempts is the number of wrong submissions before the entry
	// is destroyed.
	MaxAttempts = 5
)

// SessionStore manages verification codes, user records and the
// token secondary index.
type SessionStore struct {
	kv kv.Store
}

func NewSessionStore(s kv.Store) *SessionStore {
	return &SessionStore{kv: s}
}

// IssueVerificationCode generates a uniformly random 6-digit code
// (leading zeros preserved) and stores it with a fresh TTL, overwriting
// any prior entry for the email.
func (s *SessionStore) IssueVerificationCode(ctx context.Context, email string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64())

	raw, err := kv.Encode(VerificationEntry{Code: code})
	if err != nil {
		return "", fmt.Errorf("failed to encode verification entry: %w", err)
	}
	if err := s.kv.Set(ctx, verifyKeyPrefix+EmailHash(email), raw, VerifyTTL); err != nil {
		return "", fmt.Errorf("failed to store verification entry: %w", err)
	}
	return code, nil
}

// CheckVerificationCode validates a submitted code. It fails closed:
// a missing entry, an exhausted attempt counter or an expired window all
// return false. The entry is consumed on success and destroyed once the
// attempt limit is hit.
func (s *SessionStore) CheckVerificationCode(ctx context.Context, email, submitted string) (bool, error) {
	key := verifyKeyPrefix + EmailHash(email)

	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	var entry VerificationEntry
	if err := kv.Decode(raw, &entry); err != nil {
		return false, fmt.Errorf("failed to decode verification entry: %w", err)
	}

	if entry.Attempts >= MaxAttempts {
		if err := s.kv.Delete(ctx, key); err != nil {
			return false, err
		}
		return false, nil
	}

	if entry.Code == strings.TrimSpace(submitted) {
		if err := s.kv.Delete(ctx, key); err != nil {
			return false, err
		}
		return true, nil
	}

	// Wrong code: count the attempt and re-persist with the remaining
	// TTL. A non-positive remainder means the window already closed and
	// must not be resurrected.
	entry.Attempts++
	remaining, hasTTL, err := s.kv.TTL(ctx, key)
	if err != nil {
		return false, err
	}
	if !hasTTL || remaining <= 0 {
		if err := s.kv.Delete(ctx, key); err != nil {
			return false, err
		}
		return false, nil
	}
	raw, err = kv.Encode(entry)
	if err != nil {
		return false, fmt.Errorf("failed to encode verification entry: %w", err)
	}
	if err := s.kv.Set(ctx, key, raw, remaining); err != nil {
		return false, err
	}
	return false, nil
}

// DiscardVerificationCode removes the live entry unconditionally. Used
// to roll back issuance when the outbound email fails to send.
func (s *SessionStore) DiscardVerificationCode(ctx context.Context, email string) error {
	return s.kv.Delete(ctx, verifyKeyPrefix+EmailHash(email))
}

// GetOrCreateUser looks the user up by email hash and creates the record
// on first login. A returning login reuses the existing record without
// rotating the token.
func (s *SessionStore) GetOrCreateUser(ctx context.Context, email string) (*User, error) {
	eh := EmailHash(email)

	raw, ok, err := s.kv.Get(ctx, userKeyPrefix+eh)
	if err != nil {
		return nil, err
	}
	if ok {
		var u User
		if err := kv.Decode(raw, &u); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		return &u, nil
	}

	u := User{
		Email:     NormalizeEmail(email),
		CreatedAt: time.Now().UTC(),
		Token:     newToken(),
	}
	raw, err = kv.Encode(u)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user: %w", err)
	}
	if err := s.kv.Set(ctx, userKeyPrefix+eh, raw, 0); err != nil {
		return nil, err
	}
	// Secondary index: token -> email hash for bearer-token lookup.
	if err := s.kv.Set(ctx, tokenKeyPrefix+u.Token, eh, 0); err != nil {
		return nil, err
	}
	return &u, nil
}

// ResolveToken follows the token index to the user record. Returns
// (nil, nil) when either hop misses.
func (s *SessionStore) ResolveToken(ctx context.Context, token string) (*User, error) {
	eh, ok, err := s.kv.Get(ctx, tokenKeyPrefix+token)
	if err != nil || !ok {
		return nil, err
	}
	raw, ok, err := s.kv.Get(ctx, userKeyPrefix+eh)
	if err != nil || !ok {
		return nil, err
	}
	var u User
	if err := kv.Decode(raw, &u); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &u, nil
}
