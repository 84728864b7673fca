package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testBid = Bid{
	Advertiser:  "Acme",
	Headline:    "Anvils on sale",
	Description: "Heavy duty anvils for every need.",
	CTAText:     "Buy Now",
	URL:         "https://acme.example",
}

func bidServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func writeBid(t *testing.T, w http.ResponseWriter, bid *Bid) {
	t.Helper()
	var br bidResponse
	br.Data.Bid = bid
	require.NoError(t, json.NewEncoder(w).Encode(br))
}

func sampleContext() []ChatMessage {
	return []ChatMessage{
		{Role: "user", Content: "I need new running shoes"},
		{Role: "assistant", Content: "What distance do you usually run?"},
	}
}

func TestRequestBidReturnsSSPBid(t *testing.T) {
	var gotKey string
	var gotReq bidRequest
	srv := bidServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("thrad-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		writeBid(t, w, &testBid)
	})

	relay := NewAdRelay("primary-key", "fallback-key", srv.URL, zap.NewNop())
	bid := relay.RequestBid(context.Background(), sampleContext(), "a@b.com", "chat123", 3)

	assert.Equal(t, testBid, bid)
	assert.Equal(t, "primary-key", gotKey)
	assert.Equal(t, "chat123", gotReq.ChatID)
	assert.Equal(t, 3, gotReq.TurnNumber)
	assert.Len(t, gotReq.Messages, 2)
}

func TestRequestBidAnonymizesUserID(t *testing.T) {
	var gotReq bidRequest
	srv := bidServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		writeBid(t, w, &testBid)
	})

	relay := NewAdRelay("key", "", srv.URL, zap.NewNop())
	relay.RequestBid(context.Background(), sampleContext(), "a@b.com", "chat123", 1)

	assert.True(t, strings.HasPrefix(gotReq.UserID, "user_"))
	assert.Len(t, gotReq.UserID, len("user_")+16)
	assert.NotContains(t, gotReq.UserID, "@")
}

func TestRequestBidShortContextSkipsNetwork(t *testing.T) {
	srv := bidServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("the SSP must not be called for a single-message context")
	})

	relay := NewAdRelay("key", "", srv.URL, zap.NewNop())
	bid := relay.RequestBid(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, "a@b.com", "c", 1)

	assert.Contains(t, mockBids, bid)
}

func TestRequestBidFallsBackToSecondKey(t *testing.T) {
	var keys []string
	srv := bidServer(t, func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("thrad-api-key")
		keys = append(keys, key)
		if key == "bad-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeBid(t, w, &testBid)
	})

	relay := NewAdRelay("bad-key", "good-key", srv.URL, zap.NewNop())
	bid := relay.RequestBid(context.Background(), sampleContext(), "a@b.com", "c", 2)

	assert.Equal(t, testBid, bid)
	assert.Equal(t, []string{"bad-key", "good-key"}, keys)
}

func TestRequestBidAllKeysFailYieldsMock(t *testing.T) {
	srv := bidServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	relay := NewAdRelay("k1", "k2", srv.URL, zap.NewNop())
	bid := relay.RequestBid(context.Background(), sampleContext(), "a@b.com", "c", 2)

	assert.Contains(t, mockBids, bid)
}

func TestRequestBidEmptySSPBidYieldsMock(t *testing.T) {
	srv := bidServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeBid(t, w, nil)
	})

	relay := NewAdRelay("key", "", srv.URL, zap.NewNop())
	bid := relay.RequestBid(context.Background(), sampleContext(), "a@b.com", "c", 2)

	assert.Contains(t, mockBids, bid)
}

func TestRequestBidNoKeysConfigured(t *testing.T) {
	srv := bidServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("the SSP must not be called without a credential")
	})

	relay := NewAdRelay("", "", srv.URL, zap.NewNop())
	bid := relay.RequestBid(context.Background(), sampleContext(), "a@b.com", "c", 2)

	assert.Contains(t, mockBids, bid)
}
