// Package store defines the Repository interface for persisting exported
// nodenets, with SQLite and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/nodenet/internal/nodenet"
)

// ErrNotFound is returned when no nodenet with the requested uid is stored.
var ErrNotFound = errors.New("nodenet not stored")

// Summary describes a stored nodenet without its payload.
type Summary struct {
	UID       string    `json:"uid"`
	Name      string    `json:"name"`
	Step      int       `json:"step"`
	Version   int       `json:"version"`
	NodeCount int       `json:"node_count"`
	LinkCount int       `json:"link_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

func summarize(data nodenet.Data, at time.Time) Summary {
	return Summary{
		UID:       data.UID,
		Name:      data.Name,
		Step:      data.Step,
		Version:   data.Version,
		NodeCount: len(data.Nodes),
		LinkCount: len(data.Links),
		UpdatedAt: at,
	}
}

// Repository stores exported nodenets keyed by uid.
type Repository interface {
	// Save inserts or replaces the nodenet with data.UID.
	Save(ctx context.Context, data nodenet.Data) error
	// Load returns the stored nodenet or ErrNotFound.
	Load(ctx context.Context, uid string) (nodenet.Data, error)
	// List returns summaries of all stored nodenets ordered by name, then uid.
	List(ctx context.Context) ([]Summary, error)
	// Delete removes a stored nodenet. Deleting a missing uid returns ErrNotFound.
	Delete(ctx context.Context, uid string) error
	Close() error
}
