package service

import (
	"fmt"
	"time"

	"ecoadvisor-go/internal/model"
)

// TiePolicy 决定本地与服务端 LastUpdated 相同时采用哪一份。
type TiePolicy int

const (
	// PreferLocal 相同时间戳保留本地副本（默认）。
	PreferLocal TiePolicy = iota
	// PreferServer 相同时间戳采用服务端副本。
	PreferServer
)

// ParseTiePolicy 解析配置中的 sync.tie_policy。
func ParseTiePolicy(s string) (TiePolicy, error) {
	switch s {
	case "", "prefer_local":
		return PreferLocal, nil
	case "prefer_server":
		return PreferServer, nil
	}
	return PreferLocal, fmt.Errorf("unknown tie policy %q", s)
}

const titleMaxRunes = 50

// Reconcile 合并本地持有的对话与服务端列表。
// 返回的 authoritative 为当前应展示的对话，list 始终是服务端列表。
func Reconcile(local *model.Conversation, serverList []model.Conversation, policy TiePolicy) (*model.Conversation, []model.Conversation) {
	if local == nil {
		if len(serverList) == 0 {
			return nil, serverList
		}
		first := serverList[0].Clone()
		return &first, serverList
	}

	for _, server := range serverList {
		if server.ID != local.ID {
			continue
		}
		if preferServer(*local, server, policy) {
			adopted := server.Clone()
			return &adopted, serverList
		}
		return local, serverList
	}

	// 本地对话尚未持久化或已在别处被删除
	return local, serverList
}

// preferServer 实现按时间戳的最后写入者胜出。
func preferServer(local, server model.Conversation, policy TiePolicy) bool {
	if server.LastUpdated.After(local.LastUpdated) {
		return true
	}
	return policy == PreferServer && server.LastUpdated.Equal(local.LastUpdated)
}

// DeriveTitle 在对话仍使用占位标题且消息数大于 1 时，从第一条用户消息生成标题。
// 已有真实标题时返回 false，不会重复生成。
func DeriveTitle(conv model.Conversation) (string, bool) {
	if conv.Title != model.PlaceholderTitle || len(conv.Messages) <= 1 {
		return conv.Title, false
	}
	for _, msg := range conv.Messages {
		if !msg.IsUser {
			continue
		}
		runes := []rune(msg.Text)
		if len(runes) > titleMaxRunes {
			return string(runes[:titleMaxRunes]) + "...", true
		}
		return msg.Text, true
	}
	created := conv.CreatedAt.Time
	if created.IsZero() {
		created = time.Now()
	}
	return "Conversation " + created.Format("2006-01-02"), true
}

// ApplyTitle 就地生成标题，返回是否发生变化。
func ApplyTitle(conv *model.Conversation) bool {
	title, changed := DeriveTitle(*conv)
	if changed {
		conv.Title = title
	}
	return changed
}
