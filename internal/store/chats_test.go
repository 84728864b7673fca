package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChat(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewChatStore(kvs)

	chat, err := s.CreateChat(context.Background(), "A@B.com", "Hello world")
	require.NoError(t, err)

	assert.Len(t, chat.ID, 12)
	assert.Equal(t, "a@b.com", chat.UserEmail)
	assert.Equal(t, "Hello world", chat.Title)
	assert.Empty(t, chat.Messages)
}

func TestCreateChatTruncatesLongTitle(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewChatStore(kvs)

	msg := "Hello there, this is a longer than fifty character opening message"
	chat, err := s.CreateChat(context.Background(), "a@b.com", msg)
	require.NoError(t, err)

	assert.Equal(t, strings.TrimSpace(msg[:50])+"...", chat.Title)
	assert.LessOrEqual(t, len(chat.Title), 53)
}

func TestGetChatMissing(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewChatStore(kvs)

	chat, err := s.GetChat(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, chat)
}

func TestAppendMessageOrdering(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewChatStore(kvs)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "a@b.com", "hi")
	require.NoError(t, err)

	first, err := s.AppendMessage(ctx, chat.ID, RoleUser, "hi")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Len(t, first.ID, 8)
	assert.Nil(t, first.Feedback)

	second, err := s.AppendMessage(ctx, chat.ID, RoleAssistant, "hello!")
	require.NoError(t, err)
	require.NotNil(t, second)

	got, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, first.ID, got.Messages[0].ID)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
	assert.Equal(t, second.ID, got.Messages[1].ID)
	assert.Equal(t, RoleAssistant, got.Messages[1].Role)
}

func TestAppendMessageUnknownChat(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewChatStore(kvs)

	msg, err := s.AppendMessage(context.Background(), "missing", RoleUser, "hi")
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestSetMessageFeedback(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewChatStore(kvs)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "a@b.com", "hi")
	require.NoError(t, err)
	msg, err := s.AppendMessage(ctx, chat.ID, RoleAssistant, "hello!")
	require.NoError(t, err)

	require.NoError(t, s.SetMessageFeedback(ctx, chat.ID, msg.ID, FeedbackLike))

	got, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Messages[0].Feedback)
	assert.Equal(t, FeedbackLike, *got.Messages[0].Feedback)
}

func TestSetMessageFeedbackUnknownMessage(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewChatStore(kvs)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "a@b.com", "hi")
	require.NoError(t, err)
	msg, err := s.AppendMessage(ctx, chat.ID, RoleAssistant, "hello!")
	require.NoError(t, err)

	require.NoError(t, s.SetMessageFeedback(ctx, chat.ID, "no-such-id", FeedbackDislike))
	require.NoError(t, s.SetMessageFeedback(ctx, "no-such-chat", msg.ID, FeedbackDislike))

	got, err := s.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Messages[0].Feedback)
}

func TestListChatsNewestFirst(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewChatStore(kvs)
	ctx := context.Background()

	first, err := s.CreateChat(ctx, "a@b.com", "first chat")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := s.CreateChat(ctx, "a@b.com", "second chat")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	third, err := s.CreateChat(ctx, "a@b.com", "third chat")
	require.NoError(t, err)

	chats, err := s.ListChats(ctx, "a@b.com")
	require.NoError(t, err)
	require.Len(t, chats, 3)
	assert.Equal(t, third.ID, chats[0].ID)
	assert.Equal(t, second.ID, chats[1].ID)
	assert.Equal(t, first.ID, chats[2].ID)
}

func TestListChatsCountsMessages(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewChatStore(kvs)
	ctx := context.Background()

	chat, err := s.CreateChat(ctx, "a@b.com", "hi")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, chat.ID, RoleUser, "hi")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, chat.ID, RoleAssistant, "hello!")
	require.NoError(t, err)

	chats, err := s.ListChats(ctx, "a@b.com")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, 2, chats[0].MessageCount)
}

func TestListChatsOtherUserEmpty(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewChatStore(kvs)
	ctx := context.Background()

	_, err := s.CreateChat(ctx, "a@b.com", "hi")
	require.NoError(t, err)

	chats, err := s.ListChats(ctx, "someone-else@b.com")
	require.NoError(t, err)
	assert.Empty(t, chats)
}
