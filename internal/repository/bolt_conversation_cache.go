package repository

import (
	"context"
	"fmt"

	"ecoadvisor-go/internal/model"

	bolt "go.etcd.io/bbolt"
)

var conversationBucket = []byte("conversations")

type boltConversationCache struct {
	db *bolt.DB
}

// NewBoltConversationCache 创建一个基于本地 BoltDB 文件的 ConversationCache。
func NewBoltConversationCache(db *bolt.DB) (ConversationCache, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &boltConversationCache{db: db}, nil
}

func (b *boltConversationCache) get(key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(conversationBucket).Get([]byte(key))
		if v != nil {
			// bolt 返回的切片只在事务内有效
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, err
}

func (b *boltConversationCache) put(key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationBucket).Put([]byte(key), value)
	})
}

func (b *boltConversationCache) LoadConversations(ctx context.Context) ([]model.Conversation, error) {
	jsonData, err := b.get(ConversationsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversations: %w", err)
	}
	return unmarshalConversations(jsonData)
}

func (b *boltConversationCache) SaveConversations(ctx context.Context, conversations []model.Conversation) error {
	jsonData, err := marshalConversations(conversations)
	if err != nil {
		return err
	}
	if err := b.put(ConversationsKey, jsonData); err != nil {
		return fmt.Errorf("failed to set conversations: %w", err)
	}
	return nil
}

func (b *boltConversationCache) LoadCurrentID(ctx context.Context) (string, error) {
	v, err := b.get(CurrentConversationKey)
	if err != nil {
		return "", fmt.Errorf("failed to get current conversation id: %w", err)
	}
	return string(v), nil
}

func (b *boltConversationCache) SaveCurrentID(ctx context.Context, id string) error {
	if err := b.put(CurrentConversationKey, []byte(id)); err != nil {
		return fmt.Errorf("failed to set current conversation id: %w", err)
	}
	return nil
}

func (b *boltConversationCache) Close() error {
	return b.db.Close()
}
