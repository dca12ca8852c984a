package resolve

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

// declaration strength of a demo/full edge; lower wins.
const (
	declaredByBoth = iota
	declaredByDemo
	declaredByFull
)

type demoEdge struct {
	demo, full     string
	byDemo, byFull bool
}

func (e *demoEdge) strength() int {
	switch {
	case e.byDemo && e.byFull:
		return declaredByBoth
	case e.byDemo:
		return declaredByDemo
	default:
		return declaredByFull
	}
}

// relations is the outcome of demo/full resolution, keyed by app id.
type relations struct {
	fullOf map[string]string // demo app id -> full game app id
	demoOf map[string]string // full game app id -> demo app id
}

// resolveRelations establishes bidirectional demo/full pointers between Steam
// records. The records are modified in place so that their pointer fields
// match the accepted pairs; pointers to apps missing from the set are kept and
// produce fetch requests.
func resolveRelations(apps map[string]*catalog.SteamRecord, fetch *fetchQueue, logger *zap.Logger) (relations, []Conflict) {
	rel := relations{fullOf: make(map[string]string), demoOf: make(map[string]string)}
	var conflicts []Conflict

	ids := make([]string, 0, len(apps))
	for id := range apps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return lessAppID(ids[i], ids[j]) })

	edges := make(map[[2]string]*demoEdge)
	addEdge := func(demo, full string, byDemo bool) {
		k := [2]string{demo, full}
		e, ok := edges[k]
		if !ok {
			e = &demoEdge{demo: demo, full: full}
			edges[k] = e
		}
		if byDemo {
			e.byDemo = true
		} else {
			e.byFull = true
		}
	}
	selfLink := func(id, field string) {
		key := catalog.SteamKey(id)
		logger.Warn("dropping self-referencing demo link",
			zap.String("key", key.String()), zap.String("field", field))
		conflicts = append(conflicts, Conflict{
			Kind:   ConflictSelfLink,
			Keys:   []catalog.Key{key},
			Reason: fmt.Sprintf("%s points at itself", field),
		})
	}

	for _, id := range ids {
		app := apps[id]
		if full := app.FullGameAppID; full != "" {
			switch {
			case full == id:
				selfLink(id, "full_game_app_id")
			case apps[full] == nil:
				fetch.add(catalog.SteamKey(full), "full game of a known demo", catalog.SteamKey(id).String())
				logger.Debug("full game missing from record set",
					zap.String("demo", id), zap.String("full_game", full))
			default:
				addEdge(id, full, true)
			}
		}
		if demo := app.DemoAppID; demo != "" {
			switch {
			case demo == id:
				selfLink(id, "demo_app_id")
			case apps[demo] == nil:
				fetch.add(catalog.SteamKey(demo), "demo of a known full game", catalog.SteamKey(id).String())
				logger.Debug("demo missing from record set",
					zap.String("full_game", id), zap.String("demo", demo))
			default:
				addEdge(demo, id, false)
			}
		}
	}

	// Both orientations declared between the same two apps: keep one.
	var flipped [][2]string
	for k := range edges {
		if _, ok := edges[[2]string{k[1], k[0]}]; ok && lessAppID(k[0], k[1]) {
			flipped = append(flipped, k)
		}
	}
	sort.Slice(flipped, func(i, j int) bool { return lessAppID(flipped[i][0], flipped[j][0]) })
	for _, k := range flipped {
		full := pickFullGame(apps[k[0]], apps[k[1]])
		demo := k[0]
		if full == k[0] {
			demo = k[1]
		}
		delete(edges, [2]string{full, demo})
		winner := catalog.SteamKey(full)
		logger.Warn("conflicting demo/full declarations",
			zap.String("a", catalog.SteamKey(k[0]).String()),
			zap.String("b", catalog.SteamKey(k[1]).String()),
			zap.String("full_game", winner.String()))
		conflicts = append(conflicts, Conflict{
			Kind:   ConflictOrientation,
			Keys:   sortedKeys(catalog.SteamKey(k[0]), catalog.SteamKey(k[1])),
			Winner: winner,
			Reason: "both records claim the same role; the non-demo record is the full game",
		})
	}

	ordered := make([]*demoEdge, 0, len(edges))
	for _, e := range edges {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.strength() != b.strength() {
			return a.strength() < b.strength()
		}
		if a.demo != b.demo {
			return lessAppID(a.demo, b.demo)
		}
		return lessAppID(a.full, b.full)
	})

	used := make(map[string]bool)
	for _, e := range ordered {
		if used[e.demo] || used[e.full] {
			logger.Warn("dropping competing demo link",
				zap.String("demo", catalog.SteamKey(e.demo).String()),
				zap.String("full_game", catalog.SteamKey(e.full).String()))
			conflicts = append(conflicts, Conflict{
				Kind:   ConflictCompeting,
				Keys:   []catalog.Key{catalog.SteamKey(e.demo), catalog.SteamKey(e.full)},
				Reason: "one side is already linked to another record",
			})
			continue
		}
		used[e.demo] = true
		used[e.full] = true
		rel.fullOf[e.demo] = e.full
		rel.demoOf[e.full] = e.demo
	}

	// Make record pointers agree with the accepted pairs. Pointers at absent
	// apps stay so the pending fetch remains visible on the record.
	for _, id := range ids {
		app := apps[id]
		if full, ok := rel.fullOf[id]; ok {
			app.FullGameAppID = full
		} else if app.FullGameAppID != "" && apps[app.FullGameAppID] != nil {
			app.FullGameAppID = ""
		}
		if demo, ok := rel.demoOf[id]; ok {
			app.DemoAppID = demo
		} else if app.DemoAppID != "" && apps[app.DemoAppID] != nil {
			app.DemoAppID = ""
		}
		if _, ok := rel.fullOf[id]; ok {
			app.IsDemo = true
		}
		if _, ok := rel.demoOf[id]; ok {
			app.IsDemo = false
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].Keys[0] < conflicts[j].Keys[0]
	})
	return rel, conflicts
}

// pickFullGame decides which of two apps claiming the same role is the full
// game: the one not flagged as a demo, else the lower app id.
func pickFullGame(a, b *catalog.SteamRecord) string {
	if a.IsDemo != b.IsDemo {
		if a.IsDemo {
			return b.AppID
		}
		return a.AppID
	}
	if lessAppID(a.AppID, b.AppID) {
		return a.AppID
	}
	return b.AppID
}

// lessAppID orders numeric app ids numerically without parsing.
func lessAppID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func sortedKeys(keys ...catalog.Key) []catalog.Key {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
