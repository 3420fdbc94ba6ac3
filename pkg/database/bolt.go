package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ecoadvisor-go/pkg/log"

	bolt "go.etcd.io/bbolt"
)

// OpenBolt 打开（必要时创建）本地 BoltDB 文件。
func OpenBolt(path string) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bolt directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db %s: %w", path, err)
	}
	log.Infof("BoltDB opened at %s", path)
	return db, nil
}
