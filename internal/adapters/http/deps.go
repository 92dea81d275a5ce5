package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/placefinder/internal/adapters/imagestore"
	"github.com/samirrijal/placefinder/internal/adapters/postgres"
	"github.com/samirrijal/placefinder/internal/adapters/valkey"
	"github.com/samirrijal/placefinder/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Places    *usecases.PlaceService
	Detection *usecases.DetectionService
	Auth      *usecases.AuthService
	NATS      *nats.Conn
	DB        *postgres.DB
	Cache     *valkey.Cache

	// Images is served under PublicPrefix when both are set.
	Images       *imagestore.Store
	PublicPrefix string
	// OpenAPIPath points at the contract served under /docs/openapi.yaml.
	OpenAPIPath string
}
