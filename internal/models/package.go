package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TravelPackage is an agent's listing. Price is kept in major currency
// units; gateway orders are created in minor units (price * 100).
type TravelPackage struct {
	bun.BaseModel `bun:"table:packages"`

	PackageID   string    `bun:"package_id,pk" json:"package_id"`
	Destination string    `bun:"destination,notnull" json:"destination"`
	Price       int64     `bun:"price,notnull" json:"price"`
	Description string    `bun:"description,notnull" json:"description"`
	AgentID     string    `bun:"agent_id,notnull" json:"agent_id,omitempty"`
	City        string    `bun:"city,nullzero" json:"city,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
}

type PackageRequest struct {
	Destination string `json:"destination"`
	Price       int64  `json:"price"`
	Description string `json:"description"`
	City        string `json:"city"`
}

// PackageEvent is broadcast over SSE and Kafka whenever the catalog
// changes. Viewers filter by city on their side.
type PackageEvent struct {
	Type      string        `json:"type"`
	Package   TravelPackage `json:"package"`
	Timestamp time.Time     `json:"timestamp"`
}
