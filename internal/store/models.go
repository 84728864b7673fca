package store

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	FeedbackLike    = "like"
	FeedbackDislike = "dislike"
)

type User struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	Token     string    `json:"token"`
}

// VerificationEntry is the live one-time-code record for an email. At
// most one exists per email; re-issuing a code overwrites it.
type VerificationEntry struct {
	Code     string `json:"code"`
	Attempts int    `json:"attempts"`
}

type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Feedback  *string   `json:"feedback"` // nil until the user reacts
}

type Chat struct {
	ID        string    `json:"id"`
	UserEmail string    `json:"user_email"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// ChatSummary is the sidebar view of a chat: no message bodies, just a
// count.
type ChatSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

// Profile is the per-user keyword-interest histogram derived from
// message text.
type Profile struct {
	Email         string         `json:"email"`
	Interests     map[string]int `json:"interests"`
	RecentTopics  []string       `json:"recent_topics"`
	TotalMessages int            `json:"total_messages"`
	LastActive    time.Time      `json:"last_active"`
}
