// Package display picks the single on-screen representation of a resolved
// entity. It is recomputed on every render and keeps no state.
package display

import (
	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

// State is the display state of an entity.
type State string

const (
	Single          State = "single"
	FullWithDemo    State = "full_with_demo"
	DemoPreferred   State = "demo_preferred"
	DemoStandalone  State = "demo_standalone"
	UnifiedReleased State = "unified_released"
)

// States lists every display state.
func States() []State {
	return []State{Single, FullWithDemo, DemoPreferred, DemoStandalone, UnifiedReleased}
}

// Status classes used by the presentation layer.
const (
	ClassReleased    = "released"
	ClassEarlyAccess = "early-access"
	ClassComingSoon  = "coming-soon"
	ClassDemo        = "demo"
	ClassItch        = "itch"
	ClassCrazyGames  = "crazygames"
)

// Link is a labelled store link.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Card is the rendered representation of one entity.
type Card struct {
	// Key is the entity whose identity the card shows; for a unified demo
	// this is the full game.
	Key           catalog.Key `json:"key"`
	State         State       `json:"state"`
	Name          string      `json:"name"`
	Image         string      `json:"image,omitempty"`
	StatusText    string      `json:"status_text"`
	StatusClass   string      `json:"status_class"`
	ReleaseText   string      `json:"release_text,omitempty"`
	PrimaryLink   Link        `json:"primary_link"`
	SecondaryLink *Link       `json:"secondary_link,omitempty"`
	PriceDisplay  string      `json:"price_display,omitempty"`
	PriceAmount   *float64    `json:"price_amount,omitempty"`
	Rating        *int        `json:"rating,omitempty"`
	ReviewCount   int         `json:"review_count,omitempty"`
}

// Lookup finds a counterpart entity by key.
type Lookup func(catalog.Key) (*catalog.Entity, bool)

type options struct {
	currency string
}

// Option customizes Resolve.
type Option func(*options)

// WithCurrency selects the preferred price currency. The default is USD.
func WithCurrency(c string) Option {
	return func(o *options) {
		if c != "" {
			o.currency = c
		}
	}
}

// Classify returns the display state of e. Counterparts missing from lookup
// are treated as absent.
func Classify(e *catalog.Entity, lookup Lookup) State {
	if e.IsAbsorbed {
		return Single
	}
	switch e.Record.(type) {
	case *catalog.ItchRecord, *catalog.CrazyGamesRecord:
		return Single
	case *catalog.SteamRecord:
	default:
		panic(catalog.UnknownRecord(e.Record))
	}

	if _, ok := counterpart(e.LinkedDemo, lookup); ok {
		full, _ := e.Steam()
		if full.ComingSoon {
			return DemoPreferred
		}
		return FullWithDemo
	}
	if !e.IsDemo() {
		return Single
	}
	full, ok := counterpart(e.LinkedFullGame, lookup)
	if !ok {
		return DemoStandalone
	}
	if rec, _ := full.Steam(); rec != nil && rec.ComingSoon {
		return DemoPreferred
	}
	return UnifiedReleased
}

// Resolve builds the card for e.
func Resolve(e *catalog.Entity, lookup Lookup, opts ...Option) Card {
	o := options{currency: "USD"}
	for _, opt := range opts {
		opt(&o)
	}

	state := Classify(e, lookup)
	switch state {
	case Single:
		c := ownCard(e, o)
		if e.IsAbsorbed && e.AbsorbedInto != "" {
			c.SecondaryLink = &Link{Label: "Also on Steam", URL: storeURL(e.AbsorbedInto, lookup)}
		}
		c.State = state
		return c

	case FullWithDemo:
		demo, _ := counterpart(e.LinkedDemo, lookup)
		c := ownCard(e, o)
		c.State = state
		c.SecondaryLink = &Link{Label: "Demo available", URL: catalog.StoreURL(demo.Record)}
		return c

	case DemoPreferred:
		full, demo := e, e
		if e.LinkedDemo != "" {
			demo, _ = counterpart(e.LinkedDemo, lookup)
		} else {
			full, _ = counterpart(e.LinkedFullGame, lookup)
		}
		c := ownCard(full, o)
		c.State = state
		if img := demo.Image(); img != "" {
			c.Image = img
		}
		c.Rating, c.ReviewCount = rating(demo)
		c.SecondaryLink = &Link{Label: "Play the demo", URL: catalog.StoreURL(demo.Record)}
		return c

	case DemoStandalone:
		c := ownCard(e, o)
		c.State = state
		c.StatusText, c.StatusClass = "Demo", ClassDemo
		return c

	case UnifiedReleased:
		full, _ := counterpart(e.LinkedFullGame, lookup)
		c := ownCard(full, o)
		c.State = state
		return c
	}
	panic("display: unhandled state " + string(state))
}

// ownCard renders an entity from its own data only.
func ownCard(e *catalog.Entity, o options) Card {
	c := Card{
		Key:         e.Key,
		Name:        e.Name(),
		Image:       e.Image(),
		ReleaseText: e.ReleaseDate(),
		PrimaryLink: Link{Label: storeLabel(e.Platform()), URL: catalog.StoreURL(e.Record)},
	}
	c.Rating, c.ReviewCount = rating(e)
	if p, ok := e.Price(o.currency); ok {
		c.PriceDisplay, c.PriceAmount = p.Display, p.Amount
	}

	switch rec := e.Record.(type) {
	case *catalog.SteamRecord:
		switch {
		case rec.ComingSoon:
			c.StatusText, c.StatusClass = "Coming Soon", ClassComingSoon
			if rec.PlannedReleaseDate != "" {
				c.ReleaseText = rec.PlannedReleaseDate
			}
		case rec.IsEarlyAccess:
			c.StatusText, c.StatusClass = "Early Access", ClassEarlyAccess
		default:
			c.StatusText, c.StatusClass = "Released", ClassReleased
		}
	case *catalog.ItchRecord:
		c.StatusText, c.StatusClass = "On itch.io", ClassItch
	case *catalog.CrazyGamesRecord:
		c.StatusText, c.StatusClass = "Browser game", ClassCrazyGames
	default:
		panic(catalog.UnknownRecord(e.Record))
	}
	return c
}

func rating(e *catalog.Entity) (*int, int) {
	r, ok := e.Review()
	if !ok {
		return nil, r.Count
	}
	pct := *r.Percentage
	return &pct, r.Count
}

func counterpart(key catalog.Key, lookup Lookup) (*catalog.Entity, bool) {
	if key == "" || lookup == nil {
		return nil, false
	}
	e, ok := lookup(key)
	return e, ok && e != nil
}

func storeURL(key catalog.Key, lookup Lookup) string {
	if e, ok := counterpart(key, lookup); ok {
		return catalog.StoreURL(e.Record)
	}
	if key.Platform() == catalog.PlatformSteam {
		return catalog.SteamStoreURL(key.ID())
	}
	return key.ID()
}

func storeLabel(p catalog.Platform) string {
	switch p {
	case catalog.PlatformSteam:
		return "Steam"
	case catalog.PlatformItch:
		return "itch.io"
	case catalog.PlatformCrazyGames:
		return "CrazyGames"
	}
	return string(p)
}
