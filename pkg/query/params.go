package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

// ParseParams reads a request from URL parameters as the browse page writes
// them. Values it cannot parse are dropped; the result is always usable.
func ParseParams(v url.Values) Request {
	var f Filter
	if p, ok := catalog.ParsePlatform(v.Get("platform")); ok {
		f.Platform = p
	}
	if n, err := strconv.Atoi(strings.TrimSpace(v.Get("rating"))); err == nil {
		f.MinRating = n
	}
	f.Tags = listParam(v, "selectedTags", "tags")
	f.TagLogic = ParseLogic(v.Get("tagLogic"))
	f.Channels = listParam(v, "channels", "selectedChannels")
	f.ChannelLogic = ParseLogic(v.Get("channelLogic"))
	f.PriceMin = floatParam(v.Get("priceMin"))
	f.PriceMax = floatParam(v.Get("priceMax"))
	f.TimeRange = v.Get("timeRange")
	f.Search = v.Get("search")
	f.HiddenGems = boolParam(v.Get("hiddenGems"))
	f.CrossPlatform = boolParam(v.Get("crossPlatform"))
	f.IncludeAbsorbed = boolParam(v.Get("includeAbsorbed"))

	req := Request{
		Filter: f.Clean(),
		Sort:   ParseSort(v.Get("sort"), v.Get("order")),
		Limit:  DefaultLimit,
	}
	if n, err := strconv.Atoi(v.Get("limit")); err == nil && n > 0 {
		req.Limit = min(n, MaxLimit)
	}
	if n, err := strconv.Atoi(v.Get("offset")); err == nil && n > 0 {
		req.Offset = n
	}
	return req
}

// Values writes req back to URL parameters. ParseParams(r.Values()) yields r
// for any cleaned request.
func (r Request) Values() url.Values {
	v := url.Values{}
	f := r.Filter
	if f.Platform != "" {
		v.Set("platform", string(f.Platform))
	}
	if f.MinRating > 0 {
		v.Set("rating", strconv.Itoa(f.MinRating))
	}
	if len(f.Tags) > 0 {
		v.Set("selectedTags", strings.Join(f.Tags, ","))
		v.Set("tagLogic", string(f.TagLogic))
	}
	if len(f.Channels) > 0 {
		v.Set("channels", strings.Join(f.Channels, ","))
		v.Set("channelLogic", string(f.ChannelLogic))
	}
	if f.PriceMin != nil {
		v.Set("priceMin", strconv.FormatFloat(*f.PriceMin, 'f', -1, 64))
	}
	if f.PriceMax != nil {
		v.Set("priceMax", strconv.FormatFloat(*f.PriceMax, 'f', -1, 64))
	}
	if f.TimeRange != "" {
		v.Set("timeRange", f.TimeRange)
	}
	if f.Search != "" {
		v.Set("search", f.Search)
	}
	if f.HiddenGems {
		v.Set("hiddenGems", "true")
	}
	if f.CrossPlatform {
		v.Set("crossPlatform", "true")
	}
	if f.IncludeAbsorbed {
		v.Set("includeAbsorbed", "true")
	}
	if r.Sort.Key != "" {
		v.Set("sort", r.Sort.Key)
		if r.Sort.Order != "" {
			v.Set("order", string(r.Sort.Order))
		}
	}
	if r.Limit > 0 {
		v.Set("limit", strconv.Itoa(r.Limit))
	}
	if r.Offset > 0 {
		v.Set("offset", strconv.Itoa(r.Offset))
	}
	return v
}

// listParam accepts repeated parameters as well as comma-separated ones.
func listParam(v url.Values, names ...string) []string {
	var out []string
	for _, name := range names {
		for _, raw := range v[name] {
			for _, part := range strings.Split(raw, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
	}
	return out
}

func floatParam(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || !validPrice(f) {
		return nil
	}
	return &f
}

func boolParam(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
