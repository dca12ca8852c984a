// Package source holds the collectors that feed raw records into the store.
package source

import (
	"context"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

// SourceType identifies which collector a batch came from.
type SourceType string

const (
	SourceYouTube SourceType = "youtube"
	SourceImport  SourceType = "import"
)

// Batch is what one collection run produced.
type Batch struct {
	Games  []catalog.RawGame
	Videos []catalog.RawVideo
}

// Len is the number of records in the batch.
func (b Batch) Len() int { return len(b.Games) + len(b.Videos) }

// Source is the interface every collector must implement.
type Source interface {
	Name() SourceType
	Collect(ctx context.Context) (Batch, error)
}

// AllSourceTypes returns all known source types.
func AllSourceTypes() []SourceType {
	return []SourceType{SourceYouTube, SourceImport}
}
