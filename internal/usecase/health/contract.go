package health

import "context"

// StorePinger checks catalog cache storage availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// IndexLoader ensures the search index is in memory.
type IndexLoader interface {
	Load(ctx context.Context) error
}
