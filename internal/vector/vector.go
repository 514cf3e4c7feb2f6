// Package vector defines the vector store boundary. The store itself
// is an external collaborator; chunk indexing is best-effort and never
// fails a request.
package vector

import "context"

// Store is the consumed vector store contract.
type Store interface {
	Upsert(ctx context.Context, id string, vec []float32, meta map[string]string) error
	Query(ctx context.Context, vec []float32, k int) ([]Match, error)
}

// Match is one nearest-neighbor result.
type Match struct {
	ID    string
	Score float32
	Meta  map[string]string
}

// Noop is a Store that accepts everything and finds nothing. Used when
// no vector backend is configured.
type Noop struct{}

func (Noop) Upsert(context.Context, string, []float32, map[string]string) error {
	return nil
}

func (Noop) Query(context.Context, []float32, int) ([]Match, error) {
	return nil, nil
}
