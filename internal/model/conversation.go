// Package model 包含了应用的数据模型定义。
package model

import "time"

const (
	// PlaceholderTitle 是尚未生成标题的对话的默认标题。
	PlaceholderTitle = "New Conversation"
	// WelcomeMessageID 是每个新对话首条欢迎消息的 ID。
	WelcomeMessageID = "1"
	// WelcomeText 是 EcoAdvisor 的欢迎语。
	WelcomeText = "Hello! I'm EcoAdvisor, your internal sustainability consultant. I'm familiar with our company's current sustainability initiatives, goals, and challenges. I can help you develop specific recommendations that build on our existing programs and align with our corporate sustainability strategy. What sustainability opportunity would you like to explore?"
	// ApologyText 在助手回复无法识别时替代答案。
	ApologyText = "I apologize, but I couldn't process your question at the moment."
	// ChatErrorText 在聊天请求失败时作为助手消息追加。
	ChatErrorText = "Sorry, I encountered an error while processing your question. Please try again."
)

// Message 代表对话中的单条消息，创建后不可修改，只能追加。
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsUser    bool      `json:"isUser"`
	Timestamp Timestamp `json:"timestamp"`
}

// Conversation 代表一个带标题、按时间排序的消息序列，以及远端助手的会话令牌。
type Conversation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	SessionID   string    `json:"sessionId"`
	Messages    []Message `json:"messages"`
	LastUpdated Timestamp `json:"lastUpdated"`
	CreatedAt   Timestamp `json:"createdAt"`
}

// WelcomeMessage 返回新对话的欢迎消息。
func WelcomeMessage(now time.Time) Message {
	return Message{
		ID:        WelcomeMessageID,
		Text:      WelcomeText,
		IsUser:    false,
		Timestamp: NewTimestamp(now),
	}
}

// NewConversation 在本地创建一个对话（远端不可用时使用）。
func NewConversation(id string, now time.Time) Conversation {
	ts := NewTimestamp(now)
	return Conversation{
		ID:          id,
		Title:       PlaceholderTitle,
		SessionID:   "",
		Messages:    []Message{WelcomeMessage(now)},
		LastUpdated: ts,
		CreatedAt:   ts,
	}
}

// EnsureWelcome 保证对话至少包含欢迎消息。
func (c *Conversation) EnsureWelcome() {
	if len(c.Messages) > 0 {
		return
	}
	at := c.CreatedAt.Time
	if at.IsZero() {
		at = time.Now()
	}
	c.Messages = []Message{WelcomeMessage(at)}
}

// Clone 返回不共享消息切片的副本。
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = append([]Message(nil), c.Messages...)
	return out
}

// Append 追加一条消息并推进 LastUpdated，LastUpdated 不会倒退。
func (c *Conversation) Append(msg Message) {
	c.Messages = append(c.Messages, msg)
	c.Touch(msg.Timestamp.Time)
}

// Touch 将 LastUpdated 推进到 at（若 at 更晚）。
func (c *Conversation) Touch(at time.Time) {
	next := NewTimestamp(at)
	if next.After(c.LastUpdated) {
		c.LastUpdated = next
	}
}
