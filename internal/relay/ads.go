package relay

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBidEndpoint = "https://ssp.thrads.ai/api/v1/ssp/bid-request"
	bidRequestTimeout  = 10 * time.Second

	// The SSP rejects contexts shorter than a user+assistant exchange.
	minBidContext = 2
)

// Bid is one ad candidate, either from the SSP or the static pool.
type Bid struct {
	Advertiser  string `json:"advertiser"`
	Headline    string `json:"headline"`
	Description string `json:"description"`
	CTAText     string `json:"cta_text"`
	URL         string `json:"url"`
	ImageURL    string `json:"image_url,omitempty"`
}

// mockBids backs every failure path so the ad card never breaks the UI.
var mockBids = []Bid{
	{
		Advertiser:  "Nike",
		Headline:    "Just Do It - New Collection",
		Description: "Discover the latest Nike running shoes designed for every level. Free shipping on orders over $50.",
		CTAText:     "Shop Now",
		URL:         "https://www.nike.com",
		ImageURL:    "https://placehold.co/600x300/111111/FFFFFF?text=Nike",
	},
	{
		Advertiser:  "Notion",
		Headline:    "Your All-in-One Workspace",
		Description: "Write, plan, and organize in one place. Trusted by teams at the world's best companies.",
		CTAText:     "Try Free",
		URL:         "https://www.notion.so",
		ImageURL:    "https://placehold.co/600x300/000000/FFFFFF?text=Notion",
	},
	{
		Advertiser:  "Vercel",
		Headline:    "Deploy Instantly",
		Description: "The platform for frontend developers. Build and deploy your next project in seconds.",
		CTAText:     "Start Building",
		URL:         "https://vercel.com",
		ImageURL:    "https://placehold.co/600x300/000000/FFFFFF?text=Vercel",
	},
	{
		Advertiser:  "Linear",
		Headline:    "Issue Tracking, Streamlined",
		Description: "The tool for modern software teams. Plan, track, and ship world-class products.",
		CTAText:     "Get Started",
		URL:         "https://linear.app",
		ImageURL:    "https://placehold.co/600x300/5E6AD2/FFFFFF?text=Linear",
	},
}

type bidMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type bidRequest struct {
	UserID     string       `json:"userId"`
	ChatID     string       `json:"chatId"`
	Messages   []bidMessage `json:"messages"`
	Production bool         `json:"production"`
	TurnNumber int          `json:"turn_number"`
	AdType     string       `json:"adtype"`
}

type bidResponse struct {
	Data struct {
		Bid *Bid `json:"bid"`
	} `json:"data"`
}

// AdRelay requests real-time ad bids from the SSP, degrading to the
// static pool on any failure. It never returns an error: ad-serving
// problems must not affect chat functionality.
type AdRelay struct {
	primaryKey  string
	fallbackKey string
	endpoint    string
	client      *http.Client
	logger      *zap.Logger
}

// NewAdRelay builds a relay against the SSP at endpoint (empty means the
// production bid endpoint).
func NewAdRelay(primaryKey, fallbackKey, endpoint string, logger *zap.Logger) *AdRelay {
	if endpoint == "" {
		endpoint = defaultBidEndpoint
	}
	return &AdRelay{
		primaryKey:  primaryKey,
		fallbackKey: fallbackKey,
		endpoint:    endpoint,
		client:      &http.Client{Timeout: bidRequestTimeout},
		logger:      logger,
	}
}

// RequestBid forwards the recent conversation context to the SSP, trying
// the primary credential then the fallback. Contexts shorter than two
// messages short-circuit to a mock bid without any network call.
func (r *AdRelay) RequestBid(ctx context.Context, messages []ChatMessage, userID, chatID string, turn int) Bid {
	if len(messages) < minBidContext {
		return randomMockBid()
	}

	now := time.Now().UTC().Format(time.RFC3339)
	payload := bidRequest{
		// The SSP must never see PII: a one-way hash stands in for the
		// user identity.
		UserID:     "user_" + anonymize(userID),
		ChatID:     chatID,
		TurnNumber: turn,
		Messages:   make([]bidMessage, 0, len(messages)),
	}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, bidMessage{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: now,
		})
	}

	for _, key := range []string{r.primaryKey, r.fallbackKey} {
		if key == "" {
			continue
		}
		bid, err := r.callBidAPI(ctx, key, payload)
		if err != nil {
			r.logger.Warn("bid request failed",
				zap.String("chat_id", chatID),
				zap.Error(err))
			continue
		}
		if bid != nil {
			return *bid
		}
	}
	return randomMockBid()
}

func (r *AdRelay) callBidAPI(ctx context.Context, apiKey string, payload bidRequest) (*Bid, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("thrad-api-key", apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bid request returned status %d", resp.StatusCode)
	}
	var br bidResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("failed to decode bid response: %w", err)
	}
	return br.Data.Bid, nil
}

func randomMockBid() Bid {
	return mockBids[rand.Intn(len(mockBids))]
}

func anonymize(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:])[:16]
}
