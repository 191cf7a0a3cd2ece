package store

import (
	"fmt"

	"gorm.io/gorm"

	"chemviz-client-go/internal/platform/errors"
)

// Driver identifiers supported by the session domain.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Dependencies captures external handles required by certain drivers.
type Dependencies struct {
	SQLiteDB *gorm.DB
}

// New creates a session store based on the provided configuration.
func New(cfg Config, deps Dependencies) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(cfg), nil
	case DriverFile:
		return NewFile(cfg)
	case DriverSQLite:
		if deps.SQLiteDB == nil {
			return nil, errors.New(errors.KindStorage, "store.new", "sqlite driver requires database handle")
		}
		return NewSQLite(deps.SQLiteDB, cfg)
	case DriverRedis:
		return NewRedis(cfg)
	default:
		return nil, errors.New(errors.KindConfig, "store.new", fmt.Sprintf("unsupported session store driver: %s", driver))
	}
}
