// Package storage keeps the latest forecast produced for each entity so it
// can be served after the batch has finished.
package storage

import (
	"errors"
	"time"
)

// Entity outcome of a batch run.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusFallback  = "fallback"
	StatusSkipped   = "skipped"
)

// ErrInvalidForecast is returned by Put for records without an entity id.
var ErrInvalidForecast = errors.New("invalid entity forecast")

// EntityForecast is the stored outcome for one entity. Values are on the
// original target scale.
type EntityForecast struct {
	EntityID    string      `json:"entityId"`
	Status      string      `json:"status"`
	Reason      string      `json:"reason,omitempty"`
	Model       string      `json:"model,omitempty"`
	GeneratedAt time.Time   `json:"generatedAt"`
	Periods     []time.Time `json:"periods,omitempty"`
	Values      []float64   `json:"values,omitempty"`
}

// Store persists entity forecasts. Put replaces any previous forecast for
// the same entity.
type Store interface {
	Put(EntityForecast) error
	Get(entityID string) (EntityForecast, bool, error)
	Entities() ([]string, error)
}
