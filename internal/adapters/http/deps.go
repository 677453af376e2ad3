package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/tripsim/internal/adapters/postgres"
	"github.com/samirrijal/tripsim/internal/adapters/valkey"
	"github.com/samirrijal/tripsim/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers. Only Simulator
// is required; the rest may be nil when the backing service is disabled.
type Dependencies struct {
	Simulator *usecases.Simulator
	Search    *usecases.SearchService
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     *valkey.Cache
	Version   string
}
