package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tradewell/twchat/internal/model"
	"go.uber.org/zap"
)

// GraphQL documents for the operations this client consumes. The schema is
// owned by the platform; only the fields local state needs are selected.
const (
	messageFields = `id chatId sender { id name avatarUrl } content attachments { id url fileName mimeType } createdAt read`

	queryConversation = `query Conversation($id: ID!) {
		conversation(id: $id) { id participants { id name avatarUrl } messages { ` + messageFields + ` } }
	}`

	queryPresence = `query Presence($userId: ID!) {
		presence(userId: $userId) { userId isOnline lastSeen }
	}`

	mutationSendMessage = `mutation SendMessage($chatId: ID!, $content: String, $attachmentIds: [ID!]) {
		sendMessage(chatId: $chatId, content: $content, attachmentIds: $attachmentIds) { ` + messageFields + ` }
	}`

	mutationMarkRead = `mutation MarkMessageRead($messageId: ID!) {
		markMessageRead(messageId: $messageId)
	}`

	mutationSetTyping = `mutation SetTyping($chatId: ID!, $isTyping: Boolean!) {
		setTyping(chatId: $chatId, isTyping: $isTyping)
	}`
)

// Client issues GraphQL queries and mutations against the platform gateway.
type Client struct {
	url    string
	token  string
	httpc  *http.Client
	logger *zap.Logger
}

// NewClient creates a gateway client. logger may be nil.
func NewClient(url, token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:    url,
		token:  token,
		httpc:  &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

func (c *Client) do(ctx context.Context, op, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("encode %s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &TransportError{Op: op, StatusCode: resp.StatusCode}
	}

	var gr gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if len(gr.Errors) > 0 {
		msgs := make([]string, len(gr.Errors))
		for i, e := range gr.Errors {
			msgs[i] = e.Message
		}
		return &TransportError{Op: op, Messages: msgs}
	}
	if out != nil {
		if err := json.Unmarshal(gr.Data, out); err != nil {
			return &TransportError{Op: op, Err: err}
		}
	}
	return nil
}

// Conversation fetches a conversation's participants and full message list.
func (c *Client) Conversation(ctx context.Context, id string) (*model.Conversation, error) {
	var data struct {
		Conversation *wireConversation `json:"conversation"`
	}
	if err := c.do(ctx, "conversation", queryConversation, map[string]any{"id": id}, &data); err != nil {
		return nil, err
	}
	if data.Conversation == nil {
		return nil, &TransportError{Op: "conversation", Messages: []string{"conversation not found"}}
	}
	return data.Conversation.toModel()
}

// SendMessage delivers a message and returns the server's copy.
func (c *Client) SendMessage(ctx context.Context, conversationID, body string, attachmentIDs []string) (*model.Message, error) {
	vars := map[string]any{"chatId": conversationID, "content": body}
	if len(attachmentIDs) > 0 {
		vars["attachmentIds"] = attachmentIDs
	}
	var data struct {
		SendMessage *wireMessage `json:"sendMessage"`
	}
	if err := c.do(ctx, "send_message", mutationSendMessage, vars, &data); err != nil {
		return nil, err
	}
	if data.SendMessage == nil {
		return nil, &TransportError{Op: "send_message", Messages: []string{"empty response"}}
	}
	return data.SendMessage.toModel()
}

// MarkMessageRead marks one message read server-side. Callers treat this as
// fire-and-forget; failures are logged, not fatal to local state.
func (c *Client) MarkMessageRead(ctx context.Context, messageID string) error {
	return c.do(ctx, "mark_read", mutationMarkRead, map[string]any{"messageId": messageID}, nil)
}

// SetTyping signals the current user's typing state for a conversation.
func (c *Client) SetTyping(ctx context.Context, conversationID string, typing bool) error {
	return c.do(ctx, "set_typing", mutationSetTyping,
		map[string]any{"chatId": conversationID, "isTyping": typing}, nil)
}

// Presence pulls the latest presence snapshot for a user.
func (c *Client) Presence(ctx context.Context, userID string) (model.Presence, error) {
	var data struct {
		Presence *wirePresence `json:"presence"`
	}
	if err := c.do(ctx, "presence", queryPresence, map[string]any{"userId": userID}, &data); err != nil {
		return model.Presence{}, err
	}
	if data.Presence == nil {
		return model.Presence{}, &TransportError{Op: "presence", Messages: []string{"empty response"}}
	}
	return data.Presence.toModel()
}
