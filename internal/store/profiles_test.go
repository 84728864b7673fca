package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMessageSingleIncrementPerCategory(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewProfileStore(kvs)

	// "code" and "python" are both technology keywords; one message
	// contributes at most one increment per category.
	p, err := s.RecordMessage(context.Background(), "a@b.com", "I write code in python")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Interests["technology"])
}

func TestRecordMessageMultipleCategories(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewProfileStore(kvs)

	p, err := s.RecordMessage(context.Background(), "a@b.com", "I want new shoes for my workout")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Interests["fashion"])
	assert.Equal(t, 1, p.Interests["health"])
	assert.Contains(t, p.RecentTopics, "shoes")
	assert.Contains(t, p.RecentTopics, "workout")
}

func TestRecordMessageNoMatchStillCounts(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewProfileStore(kvs)
	ctx := context.Background()

	p, err := s.RecordMessage(ctx, "a@b.com", "zzz qqq")
	require.NoError(t, err)
	assert.Empty(t, p.Interests)
	assert.Equal(t, 1, p.TotalMessages)
	assert.False(t, p.LastActive.IsZero())

	p, err = s.RecordMessage(ctx, "a@b.com", "zzz qqq")
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalMessages)
}

func TestRecordMessageDeduplicatesRecentTopics(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewProfileStore(kvs)
	ctx := context.Background()

	p, err := s.RecordMessage(ctx, "a@b.com", "thinking about travel")
	require.NoError(t, err)
	assert.Equal(t, []string{"travel"}, p.RecentTopics)

	// Same keyword again: the count grows but the topic is not
	// re-prepended.
	p, err = s.RecordMessage(ctx, "a@b.com", "more travel plans")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Interests["travel"])
	assert.Equal(t, []string{"travel"}, p.RecentTopics)
}

func TestRecordMessageRecentTopicsCapped(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewProfileStore(kvs)
	ctx := context.Background()

	// Distinct keywords from one category, sent one per message so each
	// lands in recent_topics.
	keywords := []string{
		"code", "coding", "programming", "software", "app", "computer",
		"tech", "developer", "api", "python", "javascript", "react",
		"shoes", "clothing", "fashion", "style", "outfit", "wear",
		"money", "invest", "stock", "crypto",
	}
	for _, kw := range keywords {
		_, err := s.RecordMessage(ctx, "a@b.com", fmt.Sprintf("about %s", kw))
		require.NoError(t, err)
	}

	p, err := s.GetProfile(ctx, "a@b.com")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(p.RecentTopics), 20)
	assert.Equal(t, len(keywords), p.TotalMessages)
}

func TestGetProfileFreshDefault(t *testing.T) {
	_, kvs := setupKV(t)
	s := NewProfileStore(kvs)

	p, err := s.GetProfile(context.Background(), "New@User.com")
	require.NoError(t, err)
	assert.Equal(t, "new@user.com", p.Email)
	assert.Empty(t, p.Interests)
	assert.Empty(t, p.RecentTopics)
	assert.Zero(t, p.TotalMessages)
}
