package ecoapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"

	"ecoadvisor-go/internal/model"
	"ecoadvisor-go/pkg/log"
)

// ConversationPatch is a partial update; nil fields are left unchanged on the server.
type ConversationPatch struct {
	Title       *string          `json:"title,omitempty"`
	SessionID   *string          `json:"sessionId,omitempty"`
	Messages    []model.Message  `json:"messages,omitempty"`
	LastUpdated *model.Timestamp `json:"lastUpdated,omitempty"`
}

// PatchFrom builds a full patch from a local conversation.
func PatchFrom(conv model.Conversation) ConversationPatch {
	title := conv.Title
	sessionID := conv.SessionID
	lastUpdated := conv.LastUpdated
	return ConversationPatch{
		Title:       &title,
		SessionID:   &sessionID,
		Messages:    conv.Messages,
		LastUpdated: &lastUpdated,
	}
}

type createConversationRequest struct {
	Title string `json:"title"`
}

// ListConversations fetches all conversations of the caller, most recently updated first.
func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	const op = "failed to fetch conversations"
	data, err := c.do(ctx, op, http.MethodGet, "/conversations", nil)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		log.Warnw("[EcoAPI] 对话列表不是数组，按空列表处理", "payload", string(data))
		return []model.Conversation{}, nil
	}

	conversations := make([]model.Conversation, 0, len(items))
	for _, item := range items {
		var conv model.Conversation
		if err := decode(op, item, &conv); err != nil {
			return nil, err
		}
		conversations = append(conversations, normalize(conv))
	}
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastUpdated.After(conversations[j].LastUpdated)
	})
	return conversations, nil
}

// GetConversation fetches one conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (model.Conversation, error) {
	return c.conversationCall(ctx, "failed to fetch conversation", http.MethodGet, "/conversations/"+url.PathEscape(id), nil)
}

// CreateConversation creates a conversation; the server seeds it with the welcome message.
func (c *Client) CreateConversation(ctx context.Context, title string) (model.Conversation, error) {
	if title == "" {
		title = model.PlaceholderTitle
	}
	return c.conversationCall(ctx, "failed to create conversation", http.MethodPost, "/conversations", createConversationRequest{Title: title})
}

// UpdateConversation applies a partial update and returns the server copy.
func (c *Client) UpdateConversation(ctx context.Context, id string, patch ConversationPatch) (model.Conversation, error) {
	return c.conversationCall(ctx, "failed to update conversation", http.MethodPut, "/conversations/"+url.PathEscape(id), patch)
}

// DeleteConversation removes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	_, err := c.do(ctx, "failed to delete conversation", http.MethodDelete, "/conversations/"+url.PathEscape(id), nil)
	return err
}

func (c *Client) conversationCall(ctx context.Context, op, method, path string, in interface{}) (model.Conversation, error) {
	data, err := c.do(ctx, op, method, path, in)
	if err != nil {
		return model.Conversation{}, err
	}
	var conv model.Conversation
	if err := decode(op, data, &conv); err != nil {
		log.Error("[EcoAPI] 解析对话失败", err)
		return model.Conversation{}, err
	}
	return normalize(conv), nil
}

// normalize restores invariants the server encoding may not carry.
func normalize(conv model.Conversation) model.Conversation {
	if conv.Title == "" {
		conv.Title = model.PlaceholderTitle
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.LastUpdated
	}
	conv.EnsureWelcome()
	return conv
}
