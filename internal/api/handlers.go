package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"adchat/internal/relay"
	"adchat/internal/store"
)

const chatSystemPrompt = "You are a helpful, concise assistant. Answer the user's questions directly, " +
	"stay on topic, and keep responses focused. If you don't know something, say so instead of guessing."

// adContextMessages bounds how much conversation context is forwarded to
// the bid provider.
const adContextMessages = 6

// CompletionStreamer yields assistant-reply fragments for a transcript.
type CompletionStreamer interface {
	StreamReply(ctx context.Context, history []relay.ChatMessage, systemPrompt string) <-chan relay.Fragment
}

// BidRequester returns an ad candidate for the given context. It never
// fails; degraded results are the provider's concern.
type BidRequester interface {
	RequestBid(ctx context.Context, messages []relay.ChatMessage, userID, chatID string, turn int) relay.Bid
}

// CodeSender delivers a verification code to an email address.
type CodeSender interface {
	SendVerificationCode(ctx context.Context, to, code string) error
}

type APIHandler struct {
	sessions    *store.SessionStore
	chats       *store.ChatStore
	profiles    *store.ProfileStore
	completions CompletionStreamer
	ads         BidRequester
	mailer      CodeSender
	logger      *zap.Logger
}

func NewAPIHandler(
	sessions *store.SessionStore,
	chats *store.ChatStore,
	profiles *store.ProfileStore,
	completions CompletionStreamer,
	ads BidRequester,
	mailer CodeSender,
	logger *zap.Logger,
) *APIHandler {
	return &APIHandler{
		sessions:    sessions,
		chats:       chats,
		profiles:    profiles,
		completions: completions,
		ads:         ads,
		mailer:      mailer,
		logger:      logger,
	}
}

type contextKey string

const userContextKey contextKey = "user"

// AuthMiddleware resolves the opaque bearer token from the X-Auth-Token
// header and stores the user on the request context.
func (h *APIHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		user, err := h.sessions.ResolveToken(r.Context(), token)
		if err != nil {
			h.logger.Error("failed to resolve token", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to resolve session")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(ctx context.Context) *store.User {
	u, _ := ctx.Value(userContextKey).(*store.User)
	return u
}

type sendCodeRequest struct {
	Email string `json:"email"`
}

func (h *APIHandler) SendCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	decodeBody(r, &req)
	email := store.NormalizeEmail(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	code, err := h.sessions.IssueVerificationCode(r.Context(), email)
	if err != nil {
		h.logger.Error("failed to issue verification code", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to issue code")
		return
	}

	if err := h.mailer.SendVerificationCode(r.Context(), email, code); err != nil {
		h.logger.Error("failed to send verification email", zap.Error(err))
		// Roll the entry back so the user is not left holding a code
		// that never arrived.
		if derr := h.sessions.DiscardVerificationCode(r.Context(), email); derr != nil {
			h.logger.Error("failed to discard verification code", zap.Error(derr))
		}
		writeError(w, http.StatusBadGateway, "Failed to send verification email")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *APIHandler) VerifyCodeHandler(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	decodeBody(r, &req)
	email := store.NormalizeEmail(req.Email)
	if email == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "Email and code are required")
		return
	}

	ok, err := h.sessions.CheckVerificationCode(r.Context(), email, req.Code)
	if err != nil {
		h.logger.Error("failed to check verification code", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to verify code")
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid or expired code")
		return
	}

	user, err := h.sessions.GetOrCreateUser(r.Context(), email)
	if err != nil {
		h.logger.Error("failed to get or create user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"email": user.Email,
		"token": user.Token,
	})
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	chats, err := h.chats.ListChats(r.Context(), user.Email)
	if err != nil {
		h.logger.Error("failed to list chats", zap.String("email", user.Email), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list chats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

type createChatRequest struct {
	Message string `json:"message"`
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	var req createChatRequest
	decodeBody(r, &req)
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	chat, err := h.chats.CreateChat(r.Context(), user.Email, message)
	if err != nil {
		h.logger.Error("failed to create chat", zap.String("email", user.Email), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create chat")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"chat": chat})
}

func (h *APIHandler) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat": chat})
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessageHandler appends the user message, relays the transcript to
// the completion provider and streams the reply back as server-sent
// events. The user message is persisted before the relay call; the
// assistant message only after the full stream completes.
func (h *APIHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}
	user := userFrom(r.Context())

	var req sendMessageRequest
	decodeBody(r, &req)
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	ctx := r.Context()
	if _, err := h.chats.AppendMessage(ctx, chat.ID, store.RoleUser, message); err != nil {
		h.logger.Error("failed to store user message", zap.String("chat_id", chat.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to store message")
		return
	}

	// Best-effort interest tracking; failures never block the reply.
	if _, err := h.profiles.RecordMessage(ctx, user.Email, message); err != nil {
		h.logger.Warn("failed to record profile message", zap.String("chat_id", chat.ID), zap.Error(err))
	}

	// Re-read so the relayed history includes the message just appended.
	chat, err := h.chats.GetChat(ctx, chat.ID)
	if err != nil || chat == nil {
		h.logger.Error("failed to reload chat", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load chat")
		return
	}
	history := toRelayMessages(chat.Messages)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var reply strings.Builder
	for frag := range h.completions.StreamReply(ctx, history, chatSystemPrompt) {
		if frag.Err != nil {
			if ctx.Err() != nil {
				// The relay surfaced the client's own disconnect; fall
				// through to the partial-persist path below instead of
				// treating it as a provider failure.
				break
			}
			h.logger.Error("completion stream failed", zap.String("chat_id", chat.ID), zap.Error(frag.Err))
			h.writeEvent(w, flusher, map[string]any{"error": frag.Err.Error()})
			return
		}
		reply.WriteString(frag.Text)
		h.writeEvent(w, flusher, map[string]any{"chunk": frag.Text})
	}

	if ctx.Err() != nil {
		// Client dropped mid-stream: keep whatever was accumulated so
		// the assistant output is not lost.
		if reply.Len() > 0 {
			if _, err := h.chats.AppendMessage(context.WithoutCancel(ctx), chat.ID, store.RoleAssistant, reply.String()); err != nil {
				h.logger.Error("failed to store partial reply", zap.String("chat_id", chat.ID), zap.Error(err))
			}
		}
		return
	}

	msg, err := h.chats.AppendMessage(ctx, chat.ID, store.RoleAssistant, reply.String())
	if err != nil || msg == nil {
		h.logger.Error("failed to store assistant message", zap.String("chat_id", chat.ID), zap.Error(err))
		h.writeEvent(w, flusher, map[string]any{"error": "failed to store reply"})
		return
	}

	h.writeEvent(w, flusher, map[string]any{"done": true, "message_id": msg.ID})
}

type feedbackRequest struct {
	MessageID string `json:"message_id"`
	Feedback  string `json:"feedback"`
}

func (h *APIHandler) FeedbackHandler(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}

	var req feedbackRequest
	decodeBody(r, &req)
	if req.MessageID == "" || (req.Feedback != store.FeedbackLike && req.Feedback != store.FeedbackDislike) {
		writeError(w, http.StatusBadRequest, "Invalid feedback")
		return
	}

	if err := h.chats.SetMessageFeedback(r.Context(), chat.ID, req.MessageID, req.Feedback); err != nil {
		h.logger.Error("failed to set feedback", zap.String("chat_id", chat.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to set feedback")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AdsHandler requests an ad bid for the chat. It always answers 200 once
// authorized: the relay degrades to mock bids on any provider failure.
func (h *APIHandler) AdsHandler(w http.ResponseWriter, r *http.Request) {
	chat, ok := h.ownedChat(w, r)
	if !ok {
		return
	}
	user := userFrom(r.Context())

	recent := chat.Messages
	if len(recent) > adContextMessages {
		recent = recent[len(recent)-adContextMessages:]
	}
	turn := 0
	for _, m := range chat.Messages {
		if m.Role == store.RoleUser {
			turn++
		}
	}

	bid := h.ads.RequestBid(r.Context(), toRelayMessages(recent), user.Email, chat.ID, turn)
	writeJSON(w, http.StatusOK, map[string]any{"bid": bid})
}

// ownedChat loads the chat from the URL and enforces the 401/403/404
// taxonomy. A false return means the response has been written.
func (h *APIHandler) ownedChat(w http.ResponseWriter, r *http.Request) (*store.Chat, bool) {
	user := userFrom(r.Context())
	chatID := chi.URLParam(r, "chatID")

	chat, err := h.chats.GetChat(r.Context(), chatID)
	if err != nil {
		h.logger.Error("failed to load chat", zap.String("chat_id", chatID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load chat")
		return nil, false
	}
	if chat == nil {
		writeError(w, http.StatusNotFound, "Chat not found")
		return nil, false
	}
	if chat.UserEmail != user.Email {
		writeError(w, http.StatusForbidden, "Forbidden")
		return nil, false
	}
	return chat, true
}

func toRelayMessages(messages []store.Message) []relay.ChatMessage {
	out := make([]relay.ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, relay.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// decodeBody tolerates empty or malformed bodies; required-field checks
// happen per handler.
func decodeBody(r *http.Request, v any) {
	if r.Body == nil || r.Body == http.NoBody {
		return
	}
	_ = json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *APIHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to marshal event payload", zap.Error(err))
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
