package resolve

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

type absorbCandidate struct {
	source, target catalog.Key
	match          MatchCase
	shared         int
	similarity     float64
}

func (c absorbCandidate) rank() int {
	if c.match == MatchSharedVideo {
		return 0
	}
	return 1
}

// absorber merges Itch/CrazyGames entities into the Steam entity that is the
// same real-world game.
type absorber struct {
	threshold float64
	window    time.Duration
	logger    *zap.Logger
}

type absorbResult struct {
	absorptions []Absorption
	ambiguous   []AmbiguousMatch
	conflicts   []Conflict
}

// consolidate marks absorbed entities in place. videos are the normalized
// video records; entities are keyed by identity key.
func (a *absorber) consolidate(entities map[catalog.Key]*catalog.Entity, videos []catalog.RawVideo) absorbResult {
	var res absorbResult
	candidates, ambiguous := a.candidates(entities, videos)
	res.ambiguous = ambiguous

	sort.Slice(candidates, func(i, j int) bool {
		x, y := candidates[i], candidates[j]
		if x.rank() != y.rank() {
			return x.rank() < y.rank()
		}
		if x.shared != y.shared {
			return x.shared > y.shared
		}
		if x.similarity != y.similarity {
			return x.similarity > y.similarity
		}
		if x.source != y.source {
			return x.source < y.source
		}
		return x.target < y.target
	})

	targets := make(map[catalog.Key]bool)
	for _, c := range candidates {
		src, dst := entities[c.source], entities[c.target]
		reason := ""
		switch {
		case c.source == c.target:
			reason = "source and target are the same entity"
		case src.IsAbsorbed:
			reason = fmt.Sprintf("already absorbed into %s", src.AbsorbedInto)
		case dst.IsAbsorbed:
			reason = "target is itself absorbed"
		case targets[c.source]:
			reason = "source is already an absorption target"
		case dst.Platform() != catalog.PlatformSteam:
			reason = "absorption target must be a steam record"
		}
		if reason != "" {
			a.logger.Warn("skipping absorption candidate",
				zap.String("source", c.source.String()),
				zap.String("target", c.target.String()),
				zap.String("case", string(c.match)),
				zap.String("reason", reason))
			res.conflicts = append(res.conflicts, Conflict{
				Kind:   ConflictAbsorption,
				Keys:   []catalog.Key{c.source, c.target},
				Reason: reason,
			})
			continue
		}

		src.IsAbsorbed = true
		src.AbsorbedInto = c.target
		dst.AbsorbedKeys = append(dst.AbsorbedKeys, c.source)
		targets[c.target] = true
		a.logger.Info("absorbed cross-platform duplicate",
			zap.String("source", c.source.String()),
			zap.String("target", c.target.String()),
			zap.String("case", string(c.match)),
			zap.Float64("similarity", c.similarity))
		res.absorptions = append(res.absorptions, Absorption{
			Source:     c.source,
			Target:     c.target,
			Case:       c.match,
			Similarity: c.similarity,
		})
	}

	for _, e := range entities {
		sort.Slice(e.AbsorbedKeys, func(i, j int) bool { return e.AbsorbedKeys[i] < e.AbsorbedKeys[j] })
		if e.IsAbsorbed {
			inherit(e, entities[e.AbsorbedInto])
		}
	}
	sort.Slice(res.absorptions, func(i, j int) bool { return res.absorptions[i].Source < res.absorptions[j].Source })
	return res
}

// candidates lists every cross-platform pair with absorption evidence. Pairs
// that share a video are never also judged on channel proximity.
func (a *absorber) candidates(entities map[catalog.Key]*catalog.Entity, videos []catalog.RawVideo) ([]absorbCandidate, []AmbiguousMatch) {
	type pair struct{ source, target catalog.Key }
	shared := make(map[pair]int)
	for _, v := range videos {
		var steam, other []catalog.Key
		for _, k := range v.Keys() {
			if entities[k] == nil {
				continue
			}
			if k.Platform() == catalog.PlatformSteam {
				steam = append(steam, k)
			} else {
				other = append(other, k)
			}
		}
		for _, s := range other {
			for _, t := range steam {
				shared[pair{s, t}]++
			}
		}
	}

	var out []absorbCandidate
	for p, n := range shared {
		out = append(out, absorbCandidate{
			source:     p.source,
			target:     p.target,
			match:      MatchSharedVideo,
			shared:     n,
			similarity: Similarity(entities[p.source].Name(), entities[p.target].Name()),
		})
	}

	// Steam appearances per channel for the proximity heuristic.
	type appearance struct {
		key catalog.Key
		at  time.Time
	}
	byChannel := make(map[string][]appearance)
	for _, e := range entities {
		if e.Platform() != catalog.PlatformSteam {
			continue
		}
		for _, v := range e.Videos {
			byChannel[v.ChannelID] = append(byChannel[v.ChannelID], appearance{e.Key, v.PublishedAt})
		}
	}

	near := make(map[pair]bool)
	for _, e := range entities {
		if e.Platform() == catalog.PlatformSteam {
			continue
		}
		for _, v := range e.Videos {
			for _, ap := range byChannel[v.ChannelID] {
				p := pair{e.Key, ap.key}
				if _, ok := shared[p]; ok || near[p] {
					continue
				}
				if absDuration(v.PublishedAt.Sub(ap.at)) <= a.window {
					near[p] = true
				}
			}
		}
	}

	var ambiguous []AmbiguousMatch
	for p := range near {
		sim := Similarity(entities[p.source].Name(), entities[p.target].Name())
		if sim < a.threshold {
			a.logger.Debug("same-channel candidate below similarity gate",
				zap.String("source", p.source.String()),
				zap.String("target", p.target.String()),
				zap.Float64("similarity", sim))
			ambiguous = append(ambiguous, AmbiguousMatch{Source: p.source, Target: p.target, Similarity: sim})
			continue
		}
		out = append(out, absorbCandidate{
			source:     p.source,
			target:     p.target,
			match:      MatchSameChannel,
			similarity: sim,
		})
	}
	sort.Slice(ambiguous, func(i, j int) bool {
		if ambiguous[i].Source != ambiguous[j].Source {
			return ambiguous[i].Source < ambiguous[j].Source
		}
		return ambiguous[i].Target < ambiguous[j].Target
	})
	return out, ambiguous
}

// inherit fills the absorbed entity's missing display data from its target.
func inherit(src, dst *catalog.Entity) {
	if dst == nil {
		return
	}
	base := src.Record.Base()
	if base.HeaderImage == "" {
		src.Inherited.HeaderImage = dst.Image()
	}
	if base.ReleaseDate == "" {
		src.Inherited.ReleaseDate = dst.ReleaseDate()
	}
	switch src.Record.(type) {
	case *catalog.ItchRecord, *catalog.CrazyGamesRecord:
		if r, ok := dst.Review(); ok || r.Count > 0 {
			src.Inherited.Review = &r
		}
	case *catalog.SteamRecord:
	default:
		panic(catalog.UnknownRecord(src.Record))
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
