package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

// Normalizer turns raw fetcher output into validated records.
type Normalizer struct {
	validate *validator.Validate
}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Game validates a raw game against its platform variant and converts it.
// The returned error is a *MalformedError.
func (n *Normalizer) Game(raw catalog.RawGame) (catalog.Record, error) {
	subject := gameSubject(raw)
	if err := n.validate.Struct(raw); err != nil {
		return nil, malformed(subject, "%s", describeValidation(err))
	}

	platform, _ := catalog.ParsePlatform(raw.Platform)
	info := catalog.Info{
		Name:        strings.TrimSpace(raw.Name),
		HeaderImage: raw.HeaderImage,
		Screenshots: raw.Screenshots,
		Tags:        normalizeLabels(raw.Tags),
		Genres:      normalizeLabels(raw.Genres),
		Developers:  raw.Developers,
		ReleaseDate: strings.TrimSpace(raw.ReleaseDate),
		LastFetched: raw.LastFetched.UTC(),
	}

	switch platform {
	case catalog.PlatformSteam:
		if raw.SteamAppID == "" {
			return nil, malformed(subject, "steam record without app id")
		}
		if raw.URL != "" {
			return nil, malformed(subject, "steam record carries a store url field")
		}
		rec := &catalog.SteamRecord{
			Info:               info,
			AppID:              raw.SteamAppID,
			IsFree:             raw.IsFree,
			IsEarlyAccess:      deref(raw.IsEarlyAccess),
			ComingSoon:         deref(raw.ComingSoon),
			PlannedReleaseDate: strings.TrimSpace(raw.PlannedReleaseDate),
			IsDemo:             deref(raw.IsDemo),
			DemoAppID:          raw.DemoAppID,
			FullGameAppID:      raw.FullGameAppID,
			Review: catalog.Review{
				Percentage: raw.PositiveReviewPercentage,
				Summary:    raw.ReviewSummary,
			},
		}
		if raw.ReviewCount != nil {
			rec.Review.Count = *raw.ReviewCount
		}
		if len(raw.Prices) > 0 {
			rec.Prices = make(map[string]catalog.Price, len(raw.Prices))
			for currency, p := range raw.Prices {
				rec.Prices[strings.ToUpper(currency)] = catalog.Price{Display: p.Display, Amount: p.Amount}
			}
		}
		if raw.Price != nil {
			return nil, malformed(subject, "steam record carries a single price; expected per-currency prices")
		}
		return rec, nil

	case catalog.PlatformItch, catalog.PlatformCrazyGames:
		if field := storefrontNeverField(raw); field != "" {
			return nil, malformed(subject, "%s record must not carry %s", platform, field)
		}
		if raw.URL == "" {
			return nil, malformed(subject, "%s record without url", platform)
		}
		url, err := catalog.CanonicalURL(platform, raw.URL)
		if err != nil {
			return nil, malformed(subject, "%v", err)
		}
		price := storefrontPrice(raw)
		if platform == catalog.PlatformItch {
			return &catalog.ItchRecord{Info: info, URL: url, Price: price}, nil
		}
		return &catalog.CrazyGamesRecord{Info: info, URL: url, Price: price}, nil

	default:
		return nil, malformed(subject, "unknown platform %q", raw.Platform)
	}
}

// Video validates a raw video. Links that cannot be canonicalized are dropped
// and returned as warnings; the video itself stays usable.
func (n *Normalizer) Video(raw catalog.RawVideo) (catalog.RawVideo, []string, error) {
	subject := "video:" + raw.VideoID
	if err := n.validate.Struct(raw); err != nil {
		return raw, nil, malformed(subject, "%s", describeValidation(err))
	}
	if raw.PublishedAt.IsZero() {
		return raw, nil, malformed(subject, "missing published_at")
	}

	var warnings []string
	out := raw
	out.PublishedAt = raw.PublishedAt.UTC()
	if raw.Links.ItchURL != "" {
		u, err := catalog.CanonicalURL(catalog.PlatformItch, raw.Links.ItchURL)
		if err != nil {
			warnings = append(warnings, err.Error())
			u = ""
		}
		out.Links.ItchURL = u
	}
	if raw.Links.CrazyGamesURL != "" {
		u, err := catalog.CanonicalURL(catalog.PlatformCrazyGames, raw.Links.CrazyGamesURL)
		if err != nil {
			warnings = append(warnings, err.Error())
			u = ""
		}
		out.Links.CrazyGamesURL = u
	}
	return out, warnings, nil
}

// storefrontNeverField names the first Steam-only field set on an Itch or
// CrazyGames record.
func storefrontNeverField(raw catalog.RawGame) string {
	switch {
	case raw.SteamAppID != "":
		return "steam_app_id"
	case raw.PositiveReviewPercentage != nil:
		return "positive_review_percentage"
	case raw.ReviewCount != nil:
		return "review_count"
	case raw.ReviewSummary != "":
		return "review_summary"
	case raw.IsDemo != nil:
		return "is_demo"
	case raw.IsEarlyAccess != nil:
		return "is_early_access"
	case raw.ComingSoon != nil:
		return "coming_soon"
	case raw.PlannedReleaseDate != "":
		return "planned_release_date"
	case raw.DemoAppID != "":
		return "demo_app_id"
	case raw.FullGameAppID != "":
		return "full_game_app_id"
	case len(raw.Prices) > 0:
		return "prices"
	}
	return ""
}

func storefrontPrice(raw catalog.RawGame) *catalog.Price {
	if raw.IsFree {
		zero := 0.0
		return &catalog.Price{Display: "Free", Amount: &zero}
	}
	if raw.Price == nil || (raw.Price.Display == "" && raw.Price.Amount == nil) {
		return nil
	}
	return &catalog.Price{Display: raw.Price.Display, Amount: raw.Price.Amount}
}

func gameSubject(raw catalog.RawGame) string {
	switch {
	case raw.SteamAppID != "":
		return fmt.Sprintf("%s:%s", raw.Platform, raw.SteamAppID)
	case raw.URL != "":
		return fmt.Sprintf("%s:%s", raw.Platform, raw.URL)
	case raw.Name != "":
		return fmt.Sprintf("%s:%q", raw.Platform, raw.Name)
	}
	return raw.Platform + ":?"
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// normalizeLabels lower-cases and de-duplicates tags, keeping first-seen order.
func normalizeLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func deref(b *bool) bool {
	return b != nil && *b
}
