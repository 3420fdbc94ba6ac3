package repository

import (
	"fmt"

	"ecoadvisor-go/internal/config"
	"ecoadvisor-go/pkg/database"
)

// NewConversationCache 根据 store.driver 创建回退存储。
func NewConversationCache(cfg config.StoreConfig) (ConversationCache, error) {
	switch cfg.Driver {
	case "", "bolt":
		db, err := database.OpenBolt(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		cache, err := NewBoltConversationCache(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return cache, nil
	case "redis":
		rdb, err := database.NewRedis(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisConversationCache(rdb, 0), nil
	case "memory":
		return NewMemoryConversationCache(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
