package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"ecoadvisor-go/internal/service"
	"ecoadvisor-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 网关只监听本机，允许所有来源
		},
	}
)

// ChatHandler 负责处理提问请求，支持 HTTP 和 WebSocket。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ChatRequest 定义了提问的请求体；conversationId 为空时使用当前对话。
type ChatRequest struct {
	ConversationID string `json:"conversationId"`
	Question       string `json:"question"`
}

func chatPayload(result service.ChatResult) gin.H {
	data := gin.H{
		"conversation": result.Conversation,
		"question":     result.Question,
		"reply":        result.Reply,
		"saved":        result.PersistErr == nil,
	}
	if result.ReplyErr != nil {
		data["replyError"] = result.ReplyErr.Error()
	}
	if result.PersistErr != nil {
		data["saveError"] = result.PersistErr.Error()
	}
	return data
}

// Send 处理一次 HTTP 提问。
func (h *ChatHandler) Send(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "无效的请求负载")
		return
	}

	result, err := h.chatService.Send(c.Request.Context(), req.ConversationID, req.Question)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondOK(c, chatPayload(result))
}

// Handle 处理一个传入的 WebSocket 连接。每条 {conversationId, question} 消息
// 依次得到一个 conversation 帧和一个 completion 帧。
func (h *ChatHandler) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立: %s", c.ClientIP())

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var req ChatRequest
		if err := json.Unmarshal(message, &req); err != nil {
			// 纯文本消息视为对当前对话的提问
			req = ChatRequest{Question: string(message)}
		}

		result, err := h.chatService.Send(c.Request.Context(), req.ConversationID, req.Question)
		if err != nil {
			log.Warnf("处理 WebSocket 提问失败: %v", err)
			if writeErr := writeFrame(conn, gin.H{"type": "error", "code": statusFor(err), "error": err.Error()}); writeErr != nil {
				break
			}
		} else {
			frame := chatPayload(result)
			frame["type"] = "conversation"
			if writeErr := writeFrame(conn, frame); writeErr != nil {
				break
			}
		}

		completion := gin.H{
			"type":      "completion",
			"status":    "finished",
			"message":   "响应已完成",
			"timestamp": time.Now().UnixMilli(),
			"date":      time.Now().Format("2006-01-02T15:04:05"),
		}
		if err := writeFrame(conn, completion); err != nil {
			break
		}
	}
}

func writeFrame(conn *websocket.Conn, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("写入 WebSocket 消息失败: %v", err)
		return err
	}
	return nil
}
