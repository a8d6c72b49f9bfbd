package api

import (
	"github.com/gin-gonic/gin"

	"github.com/colonylab/nestfeed/internal/handlers"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler) {
	group := api.Group("/accounts/:account/notifications")
	{
		group.GET("/next", handler.NextPage)
		group.GET("/unread-count", handler.UnreadCount)

		group.POST("/sync", handler.Sync)
		group.POST("/reset", handler.ResetCursor)
		group.POST("/read", handler.MarkRead)
		group.POST("/read-to", handler.MarkReadTo)
		group.POST("/read-all", handler.MarkAllRead)
	}
}
