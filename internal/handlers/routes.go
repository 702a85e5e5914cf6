package handlers

import "github.com/gin-gonic/gin"

// Register mounts the authenticated REST surface on router.
func Register(router gin.IRouter, rooms *RoomHandler, messages *MessageHandler, authMiddleware gin.HandlerFunc) {
	api := router.Group("/", authMiddleware)

	api.GET("/rooms", rooms.ListRooms)
	api.POST("/rooms", rooms.CreateRoom)
	api.GET("/rooms/public", rooms.ListPublicRooms)
	api.GET("/rooms/unread", rooms.Unread)
	api.POST("/rooms/direct", rooms.OpenDirect)
	api.GET("/rooms/:id", rooms.GetRoom)
	api.PUT("/rooms/:id", rooms.UpdateRoom)
	api.DELETE("/rooms/:id", rooms.DeleteRoom)
	api.POST("/rooms/:id/join", rooms.JoinRoom)
	api.POST("/rooms/:id/leave", rooms.LeaveRoom)
	api.POST("/rooms/:id/viewed", rooms.MarkViewed)
	api.PUT("/rooms/:id/admins", rooms.AddAdmin)
	api.DELETE("/rooms/:id/admins/:userId", rooms.RemoveAdmin)
	api.DELETE("/rooms/:id/members/:userId", rooms.RemoveMember)
	api.GET("/rooms/:id/messages", messages.RoomMessages)

	api.POST("/messages", messages.PostMessage)
	api.GET("/messages/search", messages.Search)
	api.GET("/messages/direct/:userId", messages.DirectMessages)
	api.POST("/messages/:id/reactions", messages.ToggleReaction)
	api.POST("/messages/:id/read", messages.MarkRead)

	api.GET("/users/online", messages.OnlineUsers)
}
