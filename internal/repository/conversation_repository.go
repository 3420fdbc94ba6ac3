// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"ecoadvisor-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// 本地回退存储使用的固定键。
const (
	ConversationsKey       = "ecoAdvisorConversations"
	CurrentConversationKey = "ecoAdvisorCurrentConversation"
)

// ConversationCache 是远端不可达时使用的本地键值存储，保存完整对话列表和当前选中的对话 ID。
type ConversationCache interface {
	LoadConversations(ctx context.Context) ([]model.Conversation, error)
	SaveConversations(ctx context.Context, conversations []model.Conversation) error
	LoadCurrentID(ctx context.Context) (string, error)
	SaveCurrentID(ctx context.Context, id string) error
	Close() error
}

// UpsertCached 写入或替换一个对话，并按 LastUpdated 倒序保存。
func UpsertCached(ctx context.Context, cache ConversationCache, conv model.Conversation) error {
	conversations, err := cache.LoadConversations(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range conversations {
		if conversations[i].ID == conv.ID {
			conversations[i] = conv
			replaced = true
			break
		}
	}
	if !replaced {
		conversations = append(conversations, conv)
	}
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastUpdated.After(conversations[j].LastUpdated)
	})
	return cache.SaveConversations(ctx, conversations)
}

// RemoveCached 删除一个对话。
func RemoveCached(ctx context.Context, cache ConversationCache, id string) error {
	conversations, err := cache.LoadConversations(ctx)
	if err != nil {
		return err
	}
	filtered := conversations[:0]
	for _, c := range conversations {
		if c.ID != id {
			filtered = append(filtered, c)
		}
	}
	return cache.SaveConversations(ctx, filtered)
}

func marshalConversations(conversations []model.Conversation) ([]byte, error) {
	if conversations == nil {
		conversations = []model.Conversation{}
	}
	jsonData, err := json.Marshal(conversations)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversations: %w", err)
	}
	return jsonData, nil
}

func unmarshalConversations(jsonData []byte) ([]model.Conversation, error) {
	if len(jsonData) == 0 {
		return []model.Conversation{}, nil
	}
	var conversations []model.Conversation
	if err := json.Unmarshal(jsonData, &conversations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversations: %w", err)
	}
	return conversations, nil
}

type redisConversationCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewRedisConversationCache 创建一个基于 Redis 的 ConversationCache。ttl 为 0 表示不过期。
func NewRedisConversationCache(redisClient *redis.Client, ttl time.Duration) ConversationCache {
	return &redisConversationCache{redisClient: redisClient, ttl: ttl}
}

// LoadConversations 从 Redis 获取对话列表。
func (r *redisConversationCache) LoadConversations(ctx context.Context) ([]model.Conversation, error) {
	jsonData, err := r.redisClient.Get(ctx, ConversationsKey).Bytes()
	if err == redis.Nil {
		return []model.Conversation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversations: %w", err)
	}
	return unmarshalConversations(jsonData)
}

// SaveConversations 在 Redis 中覆盖对话列表。
func (r *redisConversationCache) SaveConversations(ctx context.Context, conversations []model.Conversation) error {
	jsonData, err := marshalConversations(conversations)
	if err != nil {
		return err
	}
	if err := r.redisClient.Set(ctx, ConversationsKey, jsonData, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set conversations: %w", err)
	}
	return nil
}

func (r *redisConversationCache) LoadCurrentID(ctx context.Context) (string, error) {
	id, err := r.redisClient.Get(ctx, CurrentConversationKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get current conversation id: %w", err)
	}
	return id, nil
}

func (r *redisConversationCache) SaveCurrentID(ctx context.Context, id string) error {
	if err := r.redisClient.Set(ctx, CurrentConversationKey, id, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set current conversation id: %w", err)
	}
	return nil
}

func (r *redisConversationCache) Close() error {
	return r.redisClient.Close()
}
