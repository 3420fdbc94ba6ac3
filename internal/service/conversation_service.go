// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"ecoadvisor-go/internal/model"
	"ecoadvisor-go/internal/repository"
	"ecoadvisor-go/pkg/ecoapi"
	"ecoadvisor-go/pkg/log"

	"github.com/google/uuid"
)

// ErrConversationNotFound 表示本地和服务端都找不到该对话。
var ErrConversationNotFound = errors.New("conversation not found")

// SyncState 是单个对话的两阶段同步状态。
type SyncState int

const (
	// StateConfirmed 本地副本已与服务端确认。
	StateConfirmed SyncState = iota
	// StatePending 本地修改已生效，等待服务端确认。
	StatePending
	// StateFailed 服务端写入失败，本地修改被保留。
	StateFailed
)

func (s SyncState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFailed:
		return "failed"
	default:
		return "confirmed"
	}
}

// SyncStatus 记录对话最近一次同步的结果。
type SyncStatus struct {
	State SyncState
	Err   error
	At    time.Time
}

// ConversationAPI 是对话存储依赖的远端接口，由 *ecoapi.Client 实现。
type ConversationAPI interface {
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	GetConversation(ctx context.Context, id string) (model.Conversation, error)
	CreateConversation(ctx context.Context, title string) (model.Conversation, error)
	UpdateConversation(ctx context.Context, id string, patch ecoapi.ConversationPatch) (model.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// ConversationService 定义了对话存储与同步的接口。
type ConversationService interface {
	Current() (model.Conversation, bool)
	List() []model.Conversation
	Get(id string) (model.Conversation, bool)
	Refresh(ctx context.Context) error
	EnsureCurrent(ctx context.Context) (model.Conversation, error)
	Select(ctx context.Context, id string) (model.Conversation, error)
	New(ctx context.Context) (model.Conversation, error)
	Delete(ctx context.Context, id string) (model.Conversation, error)
	Stage(conv model.Conversation) model.Conversation
	Persist(ctx context.Context, conv model.Conversation) (model.Conversation, error)
	Status(id string) SyncStatus
}

type conversationService struct {
	api    ConversationAPI
	cache  repository.ConversationCache
	policy TiePolicy
	now    func() time.Time

	mu      sync.RWMutex
	current *model.Conversation
	list    []model.Conversation
	status  map[string]SyncStatus
}

// NewConversationService 创建一个新的 ConversationService。cache 可以为 nil，此时不做本地回退。
func NewConversationService(api ConversationAPI, cache repository.ConversationCache, policy TiePolicy) ConversationService {
	return &conversationService{
		api:    api,
		cache:  cache,
		policy: policy,
		now:    time.Now,
		status: make(map[string]SyncStatus),
	}
}

// Current 返回当前对话的副本。
func (s *conversationService) Current() (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return model.Conversation{}, false
	}
	return s.current.Clone(), true
}

// List 返回历史列表的副本。
func (s *conversationService) List() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Conversation, len(s.list))
	for i, c := range s.list {
		out[i] = c.Clone()
	}
	return out
}

// Get 在当前对话和历史列表中查找。
func (s *conversationService) Get(id string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(id)
}

func (s *conversationService) lookupLocked(id string) (model.Conversation, bool) {
	if s.current != nil && s.current.ID == id {
		return s.current.Clone(), true
	}
	for _, c := range s.list {
		if c.ID == id {
			return c.Clone(), true
		}
	}
	return model.Conversation{}, false
}

// Status 返回对话的同步状态；未记录的对话视为已确认。
func (s *conversationService) Status(id string) SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status[id]
}

func (s *conversationService) setStatusLocked(id string, state SyncState, err error) {
	s.status[id] = SyncStatus{State: state, Err: err, At: s.now()}
}

// Refresh 拉取服务端列表并与本地状态合并。
// 失败时保留本地状态（本地为空时从回退存储恢复），只记录日志并返回错误。
func (s *conversationService) Refresh(ctx context.Context) error {
	serverList, err := s.api.ListConversations(ctx)
	if err != nil {
		log.Errorw("[Refresh] 拉取对话列表失败，保留本地状态", "error", err)
		s.restoreFromCache(ctx)
		return err
	}

	s.mu.Lock()
	previous := s.current
	authoritative, list := Reconcile(s.current, serverList, s.policy)
	s.current = authoritative
	s.list = s.mergeUnconfirmedLocked(list)
	if authoritative != nil && authoritative != previous {
		s.setStatusLocked(authoritative.ID, StateConfirmed, nil)
	}
	s.mu.Unlock()

	log.Infof("[Refresh] 对话列表已同步，共 %d 条", len(list))
	s.writeThrough(ctx)
	return nil
}

// EnsureCurrent 返回当前对话，没有时创建一个。
func (s *conversationService) EnsureCurrent(ctx context.Context) (model.Conversation, error) {
	if conv, ok := s.Current(); ok {
		return conv, nil
	}
	return s.New(ctx)
}

// Select 从服务端读取对话并设为当前对话；远端不可达时使用本地副本。
func (s *conversationService) Select(ctx context.Context, id string) (model.Conversation, error) {
	conv, err := s.api.GetConversation(ctx, id)
	if err != nil {
		if !errors.Is(err, ecoapi.ErrNetwork) {
			return model.Conversation{}, err
		}
		local, ok := s.Get(id)
		if !ok {
			local, ok = s.cachedConversation(ctx, id)
		}
		if !ok {
			return model.Conversation{}, err
		}
		log.Warnw("[Select] 远端不可达，使用本地副本", "conversationId", id, "error", err)
		conv = local
	}

	s.mu.Lock()
	if s.current != nil && s.current.ID == conv.ID {
		authoritative, _ := Reconcile(s.current, []model.Conversation{conv}, s.policy)
		conv = authoritative.Clone()
	}
	s.current = &conv
	s.mu.Unlock()

	s.saveCurrentID(ctx, conv.ID)
	return conv.Clone(), nil
}

// New 创建新对话并设为当前对话。远端不可达时在本地创建，并标记为同步失败。
func (s *conversationService) New(ctx context.Context) (model.Conversation, error) {
	conv, err := s.api.CreateConversation(ctx, model.PlaceholderTitle)
	state := StateConfirmed
	if err != nil {
		if !errors.Is(err, ecoapi.ErrNetwork) {
			return model.Conversation{}, err
		}
		log.Warnw("[New] 远端不可达，在本地创建对话", "error", err)
		conv = model.NewConversation(uuid.NewString(), s.now())
		state = StateFailed
	}

	s.mu.Lock()
	c := conv.Clone()
	s.current = &c
	s.upsertLocked(conv)
	s.setStatusLocked(conv.ID, state, err)
	s.mu.Unlock()

	if state == StateFailed {
		s.cacheConversation(ctx, conv)
	}
	s.saveCurrentID(ctx, conv.ID)
	log.Infof("[New] 新对话已创建: %s", conv.ID)
	return conv.Clone(), nil
}

// Delete 删除对话。删除当前对话时会创建一个替代对话；删除其它对话只更新列表。
// 返回删除后的当前对话，没有当前对话时返回零值。
func (s *conversationService) Delete(ctx context.Context, id string) (model.Conversation, error) {
	if err := s.api.DeleteConversation(ctx, id); err != nil && !errors.Is(err, ecoapi.ErrNotFound) {
		return model.Conversation{}, err
	}

	s.mu.Lock()
	filtered := s.list[:0]
	for _, c := range s.list {
		if c.ID != id {
			filtered = append(filtered, c)
		}
	}
	s.list = filtered
	delete(s.status, id)
	wasCurrent := s.current != nil && s.current.ID == id
	if wasCurrent {
		s.current = nil
	}
	s.mu.Unlock()

	if s.cache != nil {
		if err := repository.RemoveCached(ctx, s.cache, id); err != nil {
			log.Error("[Delete] 从本地存储删除对话失败", err)
		}
	}
	log.Infof("[Delete] 对话已删除: %s", id)

	if wasCurrent {
		return s.New(ctx)
	}
	current, _ := s.Current()
	return current, nil
}

// Stage 记录一次本地修改（乐观更新），对话进入 Pending 状态。
// 修改同时写入历史列表，非当前对话的修改也能被 Get 读到。
func (s *conversationService) Stage(conv model.Conversation) model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.ID == conv.ID {
		c := conv.Clone()
		s.current = &c
	}
	s.upsertLocked(conv)
	s.setStatusLocked(conv.ID, StatePending, nil)
	return conv.Clone()
}

// Persist 将本地修改写入服务端。
// 成功时按最后写入者胜出合并服务端副本并进入 Confirmed；失败时保留本地修改、写入回退存储并进入 Failed。
func (s *conversationService) Persist(ctx context.Context, conv model.Conversation) (model.Conversation, error) {
	s.Stage(conv)

	server, err := s.api.UpdateConversation(ctx, conv.ID, ecoapi.PatchFrom(conv))
	if err != nil {
		s.mu.Lock()
		s.upsertLocked(conv)
		s.setStatusLocked(conv.ID, StateFailed, err)
		s.mu.Unlock()
		log.Warnw("[Persist] 保存对话失败，保留本地修改", "conversationId", conv.ID, "error", err)
		s.cacheConversation(ctx, conv)
		return conv.Clone(), err
	}

	local := conv.Clone()
	authoritative, _ := Reconcile(&local, []model.Conversation{server}, s.policy)
	result := authoritative.Clone()

	s.mu.Lock()
	if s.current != nil && s.current.ID == result.ID {
		c := result.Clone()
		s.current = &c
	}
	s.upsertLocked(result)
	s.setStatusLocked(result.ID, StateConfirmed, nil)
	s.mu.Unlock()

	return result, nil
}

// mergeUnconfirmedLocked 在服务端列表中保留尚未确认且更新的本地副本。
func (s *conversationService) mergeUnconfirmedLocked(serverList []model.Conversation) []model.Conversation {
	merged := make([]model.Conversation, len(serverList))
	copy(merged, serverList)
	for i, server := range merged {
		if s.status[server.ID].State == StateConfirmed {
			continue
		}
		if idx, ok := s.findInListLocked(server.ID); ok && !preferServer(s.list[idx], server, s.policy) {
			merged[i] = s.list[idx].Clone()
		}
	}
	return merged
}

// upsertLocked 将对话放到列表首位（最近更新）。
func (s *conversationService) upsertLocked(conv model.Conversation) {
	next := make([]model.Conversation, 0, len(s.list)+1)
	next = append(next, conv.Clone())
	for _, c := range s.list {
		if c.ID != conv.ID {
			next = append(next, c)
		}
	}
	s.list = next
}

// writeThrough 将最新的列表与当前对话写入回退存储。
func (s *conversationService) writeThrough(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.mu.RLock()
	snapshot := make([]model.Conversation, 0, len(s.list)+1)
	for _, c := range s.list {
		snapshot = append(snapshot, c.Clone())
	}
	var currentID string
	if s.current != nil {
		currentID = s.current.ID
		if _, inList := s.findInListLocked(currentID); !inList {
			snapshot = append([]model.Conversation{s.current.Clone()}, snapshot...)
		}
	}
	s.mu.RUnlock()

	if err := s.cache.SaveConversations(ctx, snapshot); err != nil {
		log.Error("[Cache] 写入本地对话列表失败", err)
	}
	if currentID != "" {
		s.saveCurrentID(ctx, currentID)
	}
}

func (s *conversationService) findInListLocked(id string) (int, bool) {
	for i, c := range s.list {
		if c.ID == id {
			return i, true
		}
	}
	return -1, false
}

// restoreFromCache 在本地没有任何状态时从回退存储恢复。
func (s *conversationService) restoreFromCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.mu.RLock()
	empty := s.current == nil && len(s.list) == 0
	s.mu.RUnlock()
	if !empty {
		return
	}

	cached, err := s.cache.LoadConversations(ctx)
	if err != nil {
		log.Error("[Cache] 读取本地对话列表失败", err)
		return
	}
	currentID, err := s.cache.LoadCurrentID(ctx)
	if err != nil {
		log.Error("[Cache] 读取当前对话 ID 失败", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil || len(s.list) > 0 {
		return
	}
	s.list = cached
	for i := range cached {
		if cached[i].ID == currentID {
			c := cached[i].Clone()
			s.current = &c
			break
		}
	}
	if s.current == nil && len(cached) > 0 {
		c := cached[0].Clone()
		s.current = &c
	}
	log.Infof("[Cache] 已从本地存储恢复 %d 条对话", len(cached))
}

func (s *conversationService) cachedConversation(ctx context.Context, id string) (model.Conversation, bool) {
	if s.cache == nil {
		return model.Conversation{}, false
	}
	cached, err := s.cache.LoadConversations(ctx)
	if err != nil {
		log.Error("[Cache] 读取本地对话列表失败", err)
		return model.Conversation{}, false
	}
	for _, c := range cached {
		if c.ID == id {
			return c, true
		}
	}
	return model.Conversation{}, false
}

func (s *conversationService) cacheConversation(ctx context.Context, conv model.Conversation) {
	if s.cache == nil {
		return
	}
	if err := repository.UpsertCached(ctx, s.cache, conv); err != nil {
		log.Error("[Cache] 写入本地对话失败", err)
	}
}

func (s *conversationService) saveCurrentID(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SaveCurrentID(ctx, id); err != nil {
		log.Error("[Cache] 写入当前对话 ID 失败", err)
	}
}
