package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/projectdesk/notify/internal/api/handlers/control"
	"github.com/projectdesk/notify/internal/middlewares"
)

func New(handler *control.Handler) *ginext.Engine {
	e := ginext.New()
	e.Use(middlewares.CORSMiddleware())
	e.Use(ginext.Logger())
	e.Use(ginext.Recovery())

	api := e.Group("/api")

	att := api.Group("/workers/attendance")
	{
		att.POST("/start", handler.StartAttendance)
		att.POST("/stop", handler.StopAttendance)
		att.PUT("/interval", handler.UpdateAttendanceInterval)
		att.GET("/status", handler.AttendanceStatus)
	}

	cal := api.Group("/workers/calendar")
	{
		cal.POST("/start", handler.StartCalendar)
		cal.POST("/stop", handler.StopCalendar)
		cal.GET("/queue", handler.CalendarQueue)
	}

	sock := api.Group("/socket")
	{
		sock.GET("/status", handler.SocketStatus)
		sock.POST("/connect", handler.SocketConnect)
		sock.POST("/disconnect", handler.SocketDisconnect)
		sock.POST("/reconnect", handler.SocketReconnect)
		sock.POST("/rooms/join", handler.JoinRoom)
		sock.POST("/rooms/leave", handler.LeaveRoom)
		sock.POST("/calendar-room/join", handler.JoinCalendarRoom)
		sock.POST("/calendar-room/leave", handler.LeaveCalendarRoom)
	}

	api.GET("/notifications", handler.History)

	return e
}
