package http

import (
	"github.com/nats-io/nats.go"

	"github.com/tsig-uy/mapgate/internal/adapters/valkey"
	"github.com/tsig-uy/mapgate/internal/core/ports"
	"github.com/tsig-uy/mapgate/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Sessions *usecases.SessionManager
	Lines    *usecases.LineSearchService
	Preview  ports.RoadRouter
	NATS     *nats.Conn
	Cache    *valkey.Cache
}
