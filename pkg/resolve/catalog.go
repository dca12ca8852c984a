package resolve

import (
	"sort"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

// Catalog is the resolved entity set of one rebuild. It is not modified after
// Build returns.
type Catalog struct {
	entities []*catalog.Entity
	byKey    map[catalog.Key]*catalog.Entity
}

// NewCatalog indexes entities by key. Entities are kept in key order.
func NewCatalog(entities []*catalog.Entity) *Catalog {
	sorted := append([]*catalog.Entity(nil), entities...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	byKey := make(map[catalog.Key]*catalog.Entity, len(sorted))
	for _, e := range sorted {
		byKey[e.Key] = e
	}
	return &Catalog{entities: sorted, byKey: byKey}
}

// Entities returns every entity, absorbed ones included, in key order.
func (c *Catalog) Entities() []*catalog.Entity { return c.entities }

// Len returns the number of entities.
func (c *Catalog) Len() int { return len(c.entities) }

// Lookup finds an entity by key.
func (c *Catalog) Lookup(key catalog.Key) (*catalog.Entity, bool) {
	e, ok := c.byKey[key]
	return e, ok
}

// VideosFor returns the videos referencing key, newest first.
func (c *Catalog) VideosFor(key catalog.Key) []catalog.Video {
	if e, ok := c.byKey[key]; ok {
		return e.Videos
	}
	return nil
}
