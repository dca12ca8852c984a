package source

import (
	"regexp"
	"strings"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

var (
	steamLinkRe = regexp.MustCompile(`(?i)(?:store\.steampowered\.com/app|s\.team/a)/(\d+)`)
	itchLinkRe  = regexp.MustCompile(`(?i)https?://[a-z0-9][a-z0-9-]*\.itch\.io/[a-z0-9][a-z0-9_-]*`)
	crazyLinkRe = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?crazygames\.com/game/[a-z0-9][a-z0-9_-]*`)
)

// ExtractLinks finds the first store link of each platform in a video
// description.
func ExtractLinks(text string) catalog.RawLinks {
	var links catalog.RawLinks
	if m := steamLinkRe.FindStringSubmatch(text); m != nil {
		links.SteamAppID = m[1]
	}
	if m := itchLinkRe.FindString(text); m != "" {
		links.ItchURL = m
	}
	if m := crazyLinkRe.FindString(text); m != "" {
		links.CrazyGamesURL = m
	}
	return links
}

// HasLinks reports whether any store link was found.
func HasLinks(l catalog.RawLinks) bool {
	return l.SteamAppID != "" || l.ItchURL != "" || l.CrazyGamesURL != ""
}

// Filter drops videos that cannot contribute to the catalog.
type Filter struct {
	exclude []string
}

// NewFilter creates a filter that drops titles containing any of the
// exclude keywords.
func NewFilter(excludeKeywords []string) *Filter {
	exclude := make([]string, 0, len(excludeKeywords))
	for _, kw := range excludeKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			exclude = append(exclude, kw)
		}
	}
	return &Filter{exclude: exclude}
}

// Keep returns true if the video links a store page and its title is not
// excluded.
func (f *Filter) Keep(v catalog.RawVideo) bool {
	if !HasLinks(v.Links) {
		return false
	}
	lower := strings.ToLower(v.Title)
	for _, ex := range f.exclude {
		if strings.Contains(lower, ex) {
			return false
		}
	}
	return true
}
