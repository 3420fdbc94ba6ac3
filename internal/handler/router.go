package handler

import (
	"ecoadvisor-go/internal/middleware"
	"ecoadvisor-go/internal/service"

	"github.com/gin-gonic/gin"
)

// Services 汇总路由需要的业务服务。
type Services struct {
	Conversations service.ConversationService
	Chat          service.ChatService
	Upload        service.UploadService
}

// NewRouter 创建路由引擎并注册所有路由。
func NewRouter(svc Services) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	conversationHandler := NewConversationHandler(svc.Conversations)
	chatHandler := NewChatHandler(svc.Chat)
	uploadHandler := NewUploadHandler(svc.Upload)

	apiV1 := r.Group("/api/v1")
	{
		conversations := apiV1.Group("/conversations")
		{
			conversations.GET("", conversationHandler.GetConversations)
			conversations.POST("", conversationHandler.CreateConversation)
			conversations.GET("/current", conversationHandler.GetCurrent)
			conversations.GET("/:id", conversationHandler.SelectConversation)
			conversations.DELETE("/:id", conversationHandler.DeleteConversation)
		}

		apiV1.POST("/chat", chatHandler.Send)

		upload := apiV1.Group("/upload")
		{
			upload.GET("/files", uploadHandler.ListFiles)
			upload.POST("/files", uploadHandler.SelectFiles)
			upload.DELETE("/files/:id", uploadHandler.RemoveFile)
			upload.POST("", uploadHandler.UploadAll)
			upload.POST("/process", uploadHandler.Process)
		}
	}

	// Chat 路由 (WebSocket)
	r.GET("/chat/ws", chatHandler.Handle)

	return r
}
