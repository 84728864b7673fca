package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// Key namespaces within the shared key-value store. The prefixes are an
// internal detail of the repositories in this package; nothing outside
// builds raw keys.
const (
	verifyKeyPrefix    = "verify:"
	userKeyPrefix      = "users:"
	tokenKeyPrefix     = "tokens:"
	chatKeyPrefix      = "chats:"
	userChatsKeyPrefix = "user_chats:"
	profileKeyPrefix   = "profiles:"
)

// NormalizeEmail is the canonical form used everywhere an email is
// stored or hashed.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailHash returns the stable per-user key component: the first 16 hex
// characters of the SHA-256 digest of the normalized email.
func EmailHash(email string) string {
	sum := sha256.Sum256([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(sum[:])[:16]
}

func uuidHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newToken() string { return uuidHex() }

func newChatID() string { return uuidHex()[:12] }

func newMessageID() string { return uuidHex()[:8] }
