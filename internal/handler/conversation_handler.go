package handler

import (
	"ecoadvisor-go/internal/model"
	"ecoadvisor-go/internal/service"
	"ecoadvisor-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与对话相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// conversationView 附带同步状态，供 UI 显示保存失败的提示。
type conversationView struct {
	model.Conversation
	SyncState string `json:"syncState"`
	SyncError string `json:"syncError,omitempty"`
}

func (h *ConversationHandler) view(conv model.Conversation) conversationView {
	status := h.service.Status(conv.ID)
	v := conversationView{Conversation: conv, SyncState: status.State.String()}
	if status.Err != nil {
		v.SyncError = status.Err.Error()
	}
	return v
}

// GetConversations 同步并返回历史列表。远端不可达时返回本地状态并标记 degraded。
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	err := h.service.Refresh(c.Request.Context())
	degraded := err != nil
	if degraded {
		log.Warnf("GetConversations: 使用本地状态, error: %v", err)
	}

	var currentID string
	if current, ok := h.service.Current(); ok {
		currentID = current.ID
	}
	respondOK(c, gin.H{
		"conversations": h.service.List(),
		"currentId":     currentID,
		"degraded":      degraded,
	})
}

// CreateConversation 创建新对话并设为当前对话。
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	conv, err := h.service.New(c.Request.Context())
	if err != nil {
		log.Error("CreateConversation: failed to create conversation", err)
		respondErr(c, err)
		return
	}
	respondOK(c, h.view(conv))
}

// GetCurrent 返回当前对话，没有时创建一个。
func (h *ConversationHandler) GetCurrent(c *gin.Context) {
	conv, err := h.service.EnsureCurrent(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, h.view(conv))
}

// SelectConversation 切换到指定对话。
func (h *ConversationHandler) SelectConversation(c *gin.Context) {
	conv, err := h.service.Select(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Errorf("SelectConversation: failed to load conversation %s, error: %v", c.Param("id"), err)
		respondErr(c, err)
		return
	}
	respondOK(c, h.view(conv))
}

// DeleteConversation 删除对话并返回删除后的当前对话。
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	current, err := h.service.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Errorf("DeleteConversation: failed to delete conversation %s, error: %v", c.Param("id"), err)
		respondErr(c, err)
		return
	}
	respondOK(c, gin.H{
		"current":       h.view(current),
		"conversations": h.service.List(),
	})
}
