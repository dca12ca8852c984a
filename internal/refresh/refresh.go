// Package refresh decides when stored Steam records are due for a re-fetch.
// The resolver never consults it; it only feeds the stale report.
package refresh

import (
	"sort"
	"time"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

// Tier is a refresh cadence.
type Tier string

const (
	Daily   Tier = "daily"
	Weekly  Tier = "weekly"
	Monthly Tier = "monthly"
)

// Policy is the staleness ladder.
type Policy struct {
	// Games released less than NewWithin ago refresh daily.
	NewWithin time.Duration
	// Games released less than RecentWithin ago refresh weekly.
	RecentWithin time.Duration
	Intervals    map[Tier]time.Duration
}

// DefaultPolicy returns the standard ladder: under 30 days daily, under a
// year weekly, older monthly, unknown release date weekly.
func DefaultPolicy() Policy {
	return Policy{
		NewWithin:    30 * 24 * time.Hour,
		RecentWithin: 365 * 24 * time.Hour,
		Intervals: map[Tier]time.Duration{
			Daily:   24 * time.Hour,
			Weekly:  7 * 24 * time.Hour,
			Monthly: 30 * 24 * time.Hour,
		},
	}
}

// Tier classifies a game. Unreleased games with a known date count as new.
func (p Policy) Tier(g catalog.RawGame, now time.Time) Tier {
	released, ok := catalog.ParseReleaseDate(g.ReleaseDate)
	if !ok {
		released, ok = catalog.ParseReleaseDate(g.PlannedReleaseDate)
	}
	if !ok {
		return Weekly
	}
	age := now.Sub(released)
	switch {
	case age < p.NewWithin:
		return Daily
	case age < p.RecentWithin:
		return Weekly
	default:
		return Monthly
	}
}

// Due is a record whose refresh interval has elapsed.
type Due struct {
	Key         catalog.Key   `json:"key"`
	Name        string        `json:"name"`
	Tier        Tier          `json:"tier"`
	LastFetched time.Time     `json:"last_fetched"`
	DueAt       time.Time     `json:"due_at"`
	Overdue     time.Duration `json:"overdue"`
}

// Stale lists the Steam games due for a refresh at now, most overdue first.
// Games that were never fetched are due immediately.
func (p Policy) Stale(games []catalog.RawGame, now time.Time) []Due {
	var out []Due
	for _, g := range games {
		key, ok := g.Key()
		if !ok || key.Platform() != catalog.PlatformSteam {
			continue
		}
		tier := p.Tier(g, now)
		d := Due{Key: key, Name: g.Name, Tier: tier, LastFetched: g.LastFetched, DueAt: now}
		if !g.LastFetched.IsZero() {
			d.DueAt = g.LastFetched.Add(p.Intervals[tier])
		}
		if d.DueAt.After(now) {
			continue
		}
		d.Overdue = now.Sub(d.DueAt)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Overdue != out[j].Overdue {
			return out[i].Overdue > out[j].Overdue
		}
		return out[i].Key < out[j].Key
	})
	return out
}
