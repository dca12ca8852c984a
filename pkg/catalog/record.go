package catalog

import (
	"fmt"
	"time"
)

// Price is a normalized price. Amount is in the currency's major unit.
type Price struct {
	Display string   `json:"display"`
	Amount  *float64 `json:"amount,omitempty"`
}

// Free reports whether the price is known to be zero.
func (p Price) Free() bool {
	return p.Amount != nil && *p.Amount == 0
}

// Review is Steam's review block.
type Review struct {
	Percentage *int   `json:"positive_percentage,omitempty"`
	Count      int    `json:"count"`
	Summary    string `json:"summary,omitempty"`
}

// Rated reports whether a positive-review percentage is known.
func (r Review) Rated() bool { return r.Percentage != nil }

// Info holds the fields every platform variant carries.
type Info struct {
	Name        string    `json:"name"`
	HeaderImage string    `json:"header_image,omitempty"`
	Screenshots []string  `json:"screenshots,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Genres      []string  `json:"genres,omitempty"`
	Developers  []string  `json:"developers,omitempty"`
	ReleaseDate string    `json:"release_date,omitempty"`
	LastFetched time.Time `json:"last_fetched,omitempty"`
}

// Record is the closed sum type over platform records. Only the variants in
// this package implement it; consumers switch on the concrete type and treat
// anything else as UnknownRecord.
type Record interface {
	Key() Key
	Platform() Platform
	Base() *Info
	isRecord()
}

// SteamRecord is a Steam store app, which may be a full game or a demo.
type SteamRecord struct {
	Info
	AppID              string           `json:"app_id"`
	Prices             map[string]Price `json:"prices,omitempty"`
	IsFree             bool             `json:"is_free,omitempty"`
	Review             Review           `json:"review"`
	IsEarlyAccess      bool             `json:"is_early_access,omitempty"`
	ComingSoon         bool             `json:"coming_soon,omitempty"`
	PlannedReleaseDate string           `json:"planned_release_date,omitempty"`
	IsDemo             bool             `json:"is_demo,omitempty"`
	DemoAppID          string           `json:"demo_app_id,omitempty"`
	FullGameAppID      string           `json:"full_game_app_id,omitempty"`
}

func (r *SteamRecord) Key() Key           { return SteamKey(r.AppID) }
func (r *SteamRecord) Platform() Platform { return PlatformSteam }
func (r *SteamRecord) Base() *Info        { return &r.Info }
func (*SteamRecord) isRecord()            {}

// Released reports whether the app is out, early access included.
func (r *SteamRecord) Released() bool { return !r.ComingSoon }

// Price returns the price in the given currency, falling back to USD and then
// to any currency in lexical order.
func (r *SteamRecord) Price(currency string) (Price, bool) {
	if r.IsFree {
		zero := 0.0
		return Price{Display: "Free", Amount: &zero}, true
	}
	if p, ok := r.Prices[currency]; ok {
		return p, true
	}
	if p, ok := r.Prices["USD"]; ok {
		return p, true
	}
	var best string
	for c := range r.Prices {
		if best == "" || c < best {
			best = c
		}
	}
	if best == "" {
		return Price{}, false
	}
	return r.Prices[best], true
}

// ItchRecord is an itch.io page.
type ItchRecord struct {
	Info
	URL   string `json:"url"`
	Price *Price `json:"price,omitempty"`
}

func (r *ItchRecord) Key() Key           { return NewKey(PlatformItch, r.URL) }
func (r *ItchRecord) Platform() Platform { return PlatformItch }
func (r *ItchRecord) Base() *Info        { return &r.Info }
func (*ItchRecord) isRecord()            {}

// CrazyGamesRecord is a CrazyGames browser game page.
type CrazyGamesRecord struct {
	Info
	URL   string `json:"url"`
	Price *Price `json:"price,omitempty"`
}

func (r *CrazyGamesRecord) Key() Key           { return NewKey(PlatformCrazyGames, r.URL) }
func (r *CrazyGamesRecord) Platform() Platform { return PlatformCrazyGames }
func (r *CrazyGamesRecord) Base() *Info        { return &r.Info }
func (*CrazyGamesRecord) isRecord()            {}

// UnknownRecord builds the panic value for a type switch that met a Record
// variant it does not handle. Reaching it is a programming error.
func UnknownRecord(r Record) error {
	return fmt.Errorf("catalog: unhandled record variant %T", r)
}

// StoreURL returns the canonical store link of any record.
func StoreURL(r Record) string {
	switch rec := r.(type) {
	case *SteamRecord:
		return SteamStoreURL(rec.AppID)
	case *ItchRecord:
		return rec.URL
	case *CrazyGamesRecord:
		return rec.URL
	default:
		panic(UnknownRecord(r))
	}
}

// CloneRecord returns a copy of r whose slices and maps are not shared.
func CloneRecord(r Record) Record {
	switch rec := r.(type) {
	case *SteamRecord:
		c := *rec
		c.Info = cloneInfo(rec.Info)
		if rec.Prices != nil {
			c.Prices = make(map[string]Price, len(rec.Prices))
			for k, v := range rec.Prices {
				c.Prices[k] = v
			}
		}
		return &c
	case *ItchRecord:
		c := *rec
		c.Info = cloneInfo(rec.Info)
		return &c
	case *CrazyGamesRecord:
		c := *rec
		c.Info = cloneInfo(rec.Info)
		return &c
	default:
		panic(UnknownRecord(r))
	}
}

func cloneInfo(in Info) Info {
	out := in
	out.Screenshots = append([]string(nil), in.Screenshots...)
	out.Tags = append([]string(nil), in.Tags...)
	out.Genres = append([]string(nil), in.Genres...)
	out.Developers = append([]string(nil), in.Developers...)
	return out
}
