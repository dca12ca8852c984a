package resolve

import (
	"sort"
	"time"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

// Reasons an entity is not listed on its own.
const (
	HiddenAbsorbed = "absorbed"
	HiddenDemo     = "demo"
)

// Listing is the browse-level aggregate of one entity: the entity itself,
// its linked demo, and everything absorbed into either of them.
type Listing struct {
	Key             catalog.Key
	Hidden          bool
	HiddenReason    string
	VideoCount      int
	Channels        []string
	LatestVideoDate time.Time
	Platforms       []catalog.Platform
	CrossPlatform   bool
}

// Listing builds the listing row of key. Hidden entities aggregate only
// themselves.
func (c *Catalog) Listing(key catalog.Key) (Listing, bool) {
	e, ok := c.byKey[key]
	if !ok {
		return Listing{}, false
	}
	l := Listing{Key: key}
	switch {
	case e.IsAbsorbed:
		l.Hidden, l.HiddenReason = true, HiddenAbsorbed
	case e.LinkedFullGame != "":
		if _, ok := c.byKey[e.LinkedFullGame]; ok {
			l.Hidden, l.HiddenReason = true, HiddenDemo
		}
	}

	family := []*catalog.Entity{e}
	if !l.Hidden {
		if demo, ok := c.byKey[e.LinkedDemo]; ok && e.LinkedDemo != "" {
			family = append(family, demo)
		}
		for _, member := range append([]*catalog.Entity(nil), family...) {
			for _, k := range member.AbsorbedKeys {
				if src, ok := c.byKey[k]; ok {
					family = append(family, src)
				}
			}
		}
	}

	videos := make(map[string]bool)
	channels := make(map[string]bool)
	platforms := make(map[catalog.Platform]bool)
	for _, m := range family {
		platforms[m.Platform()] = true
		for _, v := range m.Videos {
			videos[v.ID] = true
			channels[v.ChannelID] = true
			if v.PublishedAt.After(l.LatestVideoDate) {
				l.LatestVideoDate = v.PublishedAt
			}
		}
	}
	l.VideoCount = len(videos)
	for ch := range channels {
		l.Channels = append(l.Channels, ch)
	}
	sort.Strings(l.Channels)
	for _, p := range catalog.AllPlatforms() {
		if platforms[p] {
			l.Platforms = append(l.Platforms, p)
		}
	}
	l.CrossPlatform = len(l.Platforms) > 1 || e.IsAbsorbed
	return l, true
}

// Listings returns the listing rows of every entity in key order.
func (c *Catalog) Listings() []Listing {
	out := make([]Listing, 0, len(c.entities))
	for _, e := range c.entities {
		l, _ := c.Listing(e.Key)
		out = append(out, l)
	}
	return out
}
