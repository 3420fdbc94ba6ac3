package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"ecoadvisor-go/internal/model"
	"ecoadvisor-go/pkg/ecoapi"
	"ecoadvisor-go/pkg/log"

	"github.com/google/uuid"
)

var (
	// ErrEmptyQuestion 表示问题为空白。
	ErrEmptyQuestion = errors.New("question must not be empty")
	// ErrSendInProgress 表示该对话已有一个问题在等待回复。
	ErrSendInProgress = errors.New("a question is already being answered in this conversation")
)

// AssistantAPI 是聊天控制器依赖的远端接口，由 *ecoapi.Client 实现。
type AssistantAPI interface {
	Chat(ctx context.Context, question, sessionID string) (ecoapi.ChatReply, error)
}

// ChatResult 是一次提问的结果。
type ChatResult struct {
	Conversation model.Conversation
	Question     model.Message
	Reply        model.Message
	// ReplyErr 为远端调用失败的原因，此时 Reply 是固定的错误提示。
	ReplyErr error
	// PersistErr 为保存到服务端失败的原因，本地修改已保留。
	PersistErr error
}

// ChatService 定义了聊天操作的接口。
type ChatService interface {
	Send(ctx context.Context, conversationID, question string) (ChatResult, error)
}

type chatService struct {
	assistant     AssistantAPI
	conversations ConversationService
	now           func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(assistant AssistantAPI, conversations ConversationService) ChatService {
	return &chatService{
		assistant:     assistant,
		conversations: conversations,
		now:           time.Now,
		inflight:      make(map[string]struct{}),
	}
}

func (s *chatService) tryLock(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *chatService) unlock(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// Send 向助手提问并把问答追加到对话。
// 远端失败不会作为错误返回，而是变成一条可见的错误消息；只有参数错误和并发提问才返回错误。
func (s *chatService) Send(ctx context.Context, conversationID, question string) (ChatResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return ChatResult{}, ErrEmptyQuestion
	}

	conv, err := s.resolve(ctx, conversationID)
	if err != nil {
		return ChatResult{}, err
	}
	if !s.tryLock(conv.ID) {
		return ChatResult{}, ErrSendInProgress
	}
	defer s.unlock(conv.ID)

	// 加锁后重新读取，拿到上一次提问写入的最新版本
	if latest, ok := s.conversations.Get(conv.ID); ok {
		conv = latest
	}

	userMsg := model.Message{
		ID:        uuid.NewString(),
		Text:      question,
		IsUser:    true,
		Timestamp: model.NewTimestamp(s.now()),
	}
	conv.Append(userMsg)
	conv = s.conversations.Stage(conv)

	result := ChatResult{Question: userMsg}
	reply, err := s.assistant.Chat(ctx, question, conv.SessionID)
	botMsg := model.Message{
		ID:        uuid.NewString(),
		IsUser:    false,
		Timestamp: model.NewTimestamp(s.now()),
	}
	if err != nil {
		log.Errorw("[Send] 获取助手回复失败", "conversationId", conv.ID, "error", err)
		botMsg.Text = model.ChatErrorText
		result.ReplyErr = err
	} else {
		botMsg.Text = reply.Answer()
		if reply.SessionID != "" {
			conv.SessionID = reply.SessionID
		}
	}
	conv.Append(botMsg)
	ApplyTitle(&conv)
	result.Reply = botMsg

	// 保存使用独立的 context，客户端断开时本地修改仍会写回服务端
	persistCtx := context.WithoutCancel(ctx)
	saved, err := s.conversations.Persist(persistCtx, conv)
	if err != nil {
		log.Warnw("[Send] 保存对话失败，已保留本地修改", "conversationId", conv.ID, "error", err)
		result.PersistErr = err
	}
	result.Conversation = saved
	return result, nil
}

// resolve 返回要提问的对话；id 为空时使用当前对话。
func (s *chatService) resolve(ctx context.Context, id string) (model.Conversation, error) {
	if id == "" {
		return s.conversations.EnsureCurrent(ctx)
	}
	if conv, ok := s.conversations.Get(id); ok {
		return conv, nil
	}
	conv, err := s.conversations.Select(ctx, id)
	if err != nil {
		if errors.Is(err, ecoapi.ErrNotFound) {
			return model.Conversation{}, ErrConversationNotFound
		}
		return model.Conversation{}, err
	}
	return conv, nil
}
