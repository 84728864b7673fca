package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"adchat/internal/kv"
)

const titleMaxLen = 50

// ChatStore manages chat records, their embedded message lists and the
// per-user set of chat ids.
type ChatStore struct {
	kv kv.Store
}

func NewChatStore(s kv.Store) *ChatStore {
	return &ChatStore{kv: s}
}

// CreateChat persists a new empty chat owned by ownerEmail, titled from
// the first message, and registers it in the owner's chat-id set.
func (s *ChatStore) CreateChat(ctx context.Context, ownerEmail, firstMessage string) (*Chat, error) {
	chat := Chat{
		ID:        newChatID(),
		UserEmail: NormalizeEmail(ownerEmail),
		Title:     deriveTitle(firstMessage),
		CreatedAt: time.Now().UTC(),
		Messages:  []Message{},
	}
	if err := s.saveChat(ctx, &chat); err != nil {
		return nil, err
	}
	if err := s.kv.SAdd(ctx, userChatsKeyPrefix+EmailHash(ownerEmail), chat.ID); err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetChat returns (nil, nil) when the chat does not exist.
func (s *ChatStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	raw, ok, err := s.kv.Get(ctx, chatKeyPrefix+id)
	if err != nil || !ok {
		return nil, err
	}
	var chat Chat
	if err := kv.Decode(raw, &chat); err != nil {
		return nil, fmt.Errorf("failed to decode chat %s: %w", id, err)
	}
	return &chat, nil
}

// AppendMessage adds a message to the chat and rewrites the whole
// record. There is no field-level update primitive in the flat key-value
// layout, so two concurrent appends to the same chat race on the
// read-modify-write and the later write wins; that lost-update window is
// an accepted limitation of this storage model.
func (s *ChatStore) AppendMessage(ctx context.Context, chatID, role, content string) (*Message, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil || chat == nil {
		return nil, err
	}
	msg := Message{
		ID:        newMessageID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	chat.Messages = append(chat.Messages, msg)
	if err := s.saveChat(ctx, chat); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SetMessageFeedback overwrites the feedback field of the matching
// message in place. Unknown chat or message ids are a no-op.
func (s *ChatStore) SetMessageFeedback(ctx context.Context, chatID, messageID, feedback string) error {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil || chat == nil {
		return err
	}
	for i := range chat.Messages {
		if chat.Messages[i].ID == messageID {
			chat.Messages[i].Feedback = &feedback
			break
		}
	}
	return s.saveChat(ctx, chat)
}

// ListChats returns summaries of the owner's chats, newest first. Chats
// whose records have gone missing from the store are skipped.
func (s *ChatStore) ListChats(ctx context.Context, ownerEmail string) ([]ChatSummary, error) {
	ids, err := s.kv.SMembers(ctx, userChatsKeyPrefix+EmailHash(ownerEmail))
	if err != nil {
		return nil, err
	}
	summaries := make([]ChatSummary, 0, len(ids))
	for _, id := range ids {
		chat, err := s.GetChat(ctx, id)
		if err != nil {
			return nil, err
		}
		if chat == nil {
			continue
		}
		summaries = append(summaries, ChatSummary{
			ID:           chat.ID,
			Title:        chat.Title,
			CreatedAt:    chat.CreatedAt,
			MessageCount: len(chat.Messages),
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

func (s *ChatStore) saveChat(ctx context.Context, chat *Chat) error {
	raw, err := kv.Encode(chat)
	if err != nil {
		return fmt.Errorf("failed to encode chat %s: %w", chat.ID, err)
	}
	return s.kv.Set(ctx, chatKeyPrefix+chat.ID, raw, 0)
}

func deriveTitle(firstMessage string) string {
	r := []rune(firstMessage)
	if len(r) <= titleMaxLen {
		return strings.TrimSpace(firstMessage)
	}
	return strings.TrimSpace(string(r[:titleMaxLen])) + "..."
}
