package catalog

import (
	"time"
)

// RawLinks are the platform links a video description pointed at.
type RawLinks struct {
	SteamAppID    string `json:"steam_app_id,omitempty" validate:"omitempty,numeric"`
	ItchURL       string `json:"itch_url,omitempty"`
	CrazyGamesURL string `json:"crazygames_url,omitempty"`
}

// RawVideo is a video record as produced by the YouTube collector. It is never
// mutated after creation.
type RawVideo struct {
	VideoID     string    `json:"video_id" validate:"required"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
	ChannelID   string    `json:"channel_id" validate:"required"`
	ChannelName string    `json:"channel_name,omitempty"`
	Links       RawLinks  `json:"platform_links"`
}

// Keys returns the identity keys this video contributes to, Steam first.
// Links that cannot be canonicalized are skipped.
func (v RawVideo) Keys() []Key {
	var keys []Key
	if v.Links.SteamAppID != "" {
		keys = append(keys, SteamKey(v.Links.SteamAppID))
	}
	if v.Links.ItchURL != "" {
		if u, err := CanonicalURL(PlatformItch, v.Links.ItchURL); err == nil {
			keys = append(keys, NewKey(PlatformItch, u))
		}
	}
	if v.Links.CrazyGamesURL != "" {
		if u, err := CanonicalURL(PlatformCrazyGames, v.Links.CrazyGamesURL); err == nil {
			keys = append(keys, NewKey(PlatformCrazyGames, u))
		}
	}
	return keys
}

// PrimaryKey returns the preferred key for the video, if it has any link.
func (v RawVideo) PrimaryKey() (Key, bool) {
	keys := v.Keys()
	if len(keys) == 0 {
		return "", false
	}
	return keys[0], true
}

// RawPrice is a price as scraped: a display string and an optional amount.
type RawPrice struct {
	Display string   `json:"display,omitempty"`
	Amount  *float64 `json:"amount,omitempty" validate:"omitempty,min=0"`
}

// RawGame is the loose, platform-agnostic shape fetchers emit. The normalizer
// turns it into one of the Record variants or rejects it.
type RawGame struct {
	Platform string `json:"platform" validate:"required,oneof=steam itch crazygames"`

	// Steam identity.
	SteamAppID string `json:"steam_app_id,omitempty" validate:"omitempty,numeric"`
	// Itch and CrazyGames identity.
	URL string `json:"url,omitempty" validate:"omitempty,url"`

	Name        string   `json:"name" validate:"required"`
	HeaderImage string   `json:"header_image,omitempty"`
	Screenshots []string `json:"screenshots,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Developers  []string `json:"developers,omitempty"`
	ReleaseDate string   `json:"release_date,omitempty"`

	Price  *RawPrice           `json:"price,omitempty"`
	Prices map[string]RawPrice `json:"prices,omitempty" validate:"omitempty,dive"`
	IsFree bool                `json:"is_free,omitempty"`

	PositiveReviewPercentage *int   `json:"positive_review_percentage,omitempty" validate:"omitempty,min=0,max=100"`
	ReviewCount              *int   `json:"review_count,omitempty" validate:"omitempty,min=0"`
	ReviewSummary            string `json:"review_summary,omitempty"`

	IsDemo             *bool  `json:"is_demo,omitempty"`
	IsEarlyAccess      *bool  `json:"is_early_access,omitempty"`
	ComingSoon         *bool  `json:"coming_soon,omitempty"`
	PlannedReleaseDate string `json:"planned_release_date,omitempty"`
	DemoAppID          string `json:"demo_app_id,omitempty" validate:"omitempty,numeric"`
	FullGameAppID      string `json:"full_game_app_id,omitempty" validate:"omitempty,numeric"`

	LastFetched time.Time `json:"last_fetched,omitempty"`
}

// Key derives the identity key a raw game will have once normalized. It
// reports false when the platform or its id is missing or unusable.
func (g RawGame) Key() (Key, bool) {
	p, ok := ParsePlatform(g.Platform)
	if !ok {
		return "", false
	}
	switch p {
	case PlatformSteam:
		if g.SteamAppID == "" {
			return "", false
		}
		return SteamKey(g.SteamAppID), true
	default:
		u, err := CanonicalURL(p, g.URL)
		if err != nil {
			return "", false
		}
		return NewKey(p, u), true
	}
}
