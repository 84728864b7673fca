package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"adchat/internal/kv"
)

const maxRecentTopics = 20

type interestCategory struct {
	name     string
	keywords []string
}

// Order matters twice here: the first keyword hit within a category ends
// the scan for that category, and categories are walked in a fixed order
// so recent-topic ordering is stable.
var interestCategories = []interestCategory{
	{"technology", []string{"code", "coding", "programming", "software", "app", "computer", "tech", "developer", "api", "python", "javascript", "react", "ai", "machine learning", "data", "algorithm", "web", "database", "cloud", "server"}},
	{"fashion", []string{"shoes", "clothing", "fashion", "style", "outfit", "wear", "dress", "sneakers", "brand", "designer", "apparel", "accessories", "wardrobe", "trend"}},
	{"finance", []string{"money", "invest", "investing", "stock", "stocks", "crypto", "bitcoin", "bank", "finance", "financial", "budget", "savings", "trading", "portfolio", "wealth", "income"}},
	{"health", []string{"health", "fitness", "workout", "exercise", "diet", "nutrition", "wellness", "medical", "gym", "yoga", "running", "sleep", "mental health", "vitamins"}},
	{"food", []string{"food", "recipe", "cooking", "restaurant", "meal", "dinner", "lunch", "breakfast", "cuisine", "chef", "baking", "kitchen", "ingredients"}},
	{"travel", []string{"travel", "trip", "vacation", "flight", "hotel", "destination", "tourism", "explore", "adventure", "booking", "airport", "cruise"}},
	{"entertainment", []string{"movie", "music", "game", "gaming", "show", "series", "netflix", "spotify", "concert", "stream", "podcast", "book", "read"}},
	{"education", []string{"learn", "study", "course", "tutorial", "school", "university", "degree", "certification", "class", "teach", "education", "training"}},
}

// ProfileStore maintains the per-user engagement profile.
type ProfileStore struct {
	kv kv.Store
}

func NewProfileStore(s kv.Store) *ProfileStore {
	return &ProfileStore{kv: s}
}

// GetProfile returns the stored profile or a fresh zero-valued one when
// none exists yet. The profile itself is only persisted by
// RecordMessage.
func (s *ProfileStore) GetProfile(ctx context.Context, email string) (*Profile, error) {
	raw, ok, err := s.kv.Get(ctx, profileKeyPrefix+EmailHash(email))
	if err != nil {
		return nil, err
	}
	if ok {
		var p Profile
		if err := kv.Decode(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
		if p.Interests == nil {
			p.Interests = map[string]int{}
		}
		return &p, nil
	}
	return &Profile{
		Email:        NormalizeEmail(email),
		Interests:    map[string]int{},
		RecentTopics: []string{},
		LastActive:   time.Now().UTC(),
	}, nil
}

// RecordMessage scans the message for interest keywords and updates the
// profile. A category is incremented at most once per message, on its
// first matching keyword. Matched keywords land at the front of
// recent_topics unless already present, and the list is capped at 20.
// The message counter and last-active stamp advance whether or not
// anything matched.
func (s *ProfileStore) RecordMessage(ctx context.Context, email, text string) (*Profile, error) {
	p, err := s.GetProfile(ctx, email)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(text)
	var matched []string
	for _, cat := range interestCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				p.Interests[cat.name]++
				if !slices.Contains(p.RecentTopics, kw) {
					matched = append(matched, kw)
				}
				break
			}
		}
	}

	p.RecentTopics = append(matched, p.RecentTopics...)
	if len(p.RecentTopics) > maxRecentTopics {
		p.RecentTopics = p.RecentTopics[:maxRecentTopics]
	}
	p.TotalMessages++
	p.LastActive = time.Now().UTC()

	raw, err := kv.Encode(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := s.kv.Set(ctx, profileKeyPrefix+EmailHash(email), raw, 0); err != nil {
		return nil, err
	}
	return p, nil
}
