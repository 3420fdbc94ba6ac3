package repository

import (
	"context"

	"ecoadvisor-go/internal/model"

	"github.com/patrickmn/go-cache"
)

type memoryConversationCache struct {
	cache *cache.Cache
}

// NewMemoryConversationCache 创建一个进程内的 ConversationCache，条目永不过期。
func NewMemoryConversationCache() ConversationCache {
	return &memoryConversationCache{cache: cache.New(cache.NoExpiration, 0)}
}

func (m *memoryConversationCache) LoadConversations(ctx context.Context) ([]model.Conversation, error) {
	if x, found := m.cache.Get(ConversationsKey); found {
		stored := x.([]model.Conversation)
		out := make([]model.Conversation, len(stored))
		for i, c := range stored {
			out[i] = c.Clone()
		}
		return out, nil
	}
	return []model.Conversation{}, nil
}

func (m *memoryConversationCache) SaveConversations(ctx context.Context, conversations []model.Conversation) error {
	stored := make([]model.Conversation, len(conversations))
	for i, c := range conversations {
		stored[i] = c.Clone()
	}
	m.cache.Set(ConversationsKey, stored, cache.NoExpiration)
	return nil
}

func (m *memoryConversationCache) LoadCurrentID(ctx context.Context) (string, error) {
	if x, found := m.cache.Get(CurrentConversationKey); found {
		return x.(string), nil
	}
	return "", nil
}

func (m *memoryConversationCache) SaveCurrentID(ctx context.Context, id string) error {
	m.cache.Set(CurrentConversationKey, id, cache.NoExpiration)
	return nil
}

func (m *memoryConversationCache) Close() error {
	m.cache.Flush()
	return nil
}
