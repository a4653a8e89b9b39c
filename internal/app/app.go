package app

import (
	"handraise/config"
	"handraise/internal/service"
	"handraise/internal/transport/ws"
)

// App holds the wired dependencies shared by the transports.
type App struct {
	Config   *config.Config
	Rooms    *service.RoomService
	Sessions *service.SessionService
	Hub      *ws.Hub
}
