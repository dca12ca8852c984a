// Package catalog holds the domain types shared by the resolver, the display
// state machine and the query layer.
package catalog

import (
	"fmt"
	"net/url"
	"strings"
)

// Platform identifies the store a game record came from.
type Platform string

const (
	PlatformSteam      Platform = "steam"
	PlatformItch       Platform = "itch"
	PlatformCrazyGames Platform = "crazygames"
)

// AllPlatforms returns all known platforms, Steam first.
func AllPlatforms() []Platform {
	return []Platform{PlatformSteam, PlatformItch, PlatformCrazyGames}
}

// ParsePlatform maps a loosely written platform name to a Platform.
func ParsePlatform(s string) (Platform, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "steam":
		return PlatformSteam, true
	case "itch", "itch.io", "itchio":
		return PlatformItch, true
	case "crazygames", "crazy", "crazygames.com":
		return PlatformCrazyGames, true
	}
	return "", false
}

// Priority orders platforms for primary-key selection and absorption.
// Lower is preferred.
func (p Platform) Priority() int {
	switch p {
	case PlatformSteam:
		return 0
	case PlatformItch:
		return 1
	case PlatformCrazyGames:
		return 2
	}
	return 99
}

// Key is the GameIdentityKey: "<platform>:<id>", where id is a Steam app id
// or a canonical store URL.
type Key string

// NewKey builds a key from a platform and its platform-local id.
func NewKey(p Platform, id string) Key {
	return Key(string(p) + ":" + id)
}

// SteamKey builds the key for a Steam app id.
func SteamKey(appID string) Key {
	return NewKey(PlatformSteam, appID)
}

// Platform returns the platform part of the key.
func (k Key) Platform() Platform {
	p, _, _ := strings.Cut(string(k), ":")
	return Platform(p)
}

// ID returns the platform-local part of the key.
func (k Key) ID() string {
	_, id, _ := strings.Cut(string(k), ":")
	return id
}

// Valid reports whether the key has a known platform and a non-empty id.
func (k Key) Valid() bool {
	_, ok := ParsePlatform(string(k.Platform()))
	return ok && k.ID() != ""
}

func (k Key) String() string { return string(k) }

var platformHosts = map[Platform]func(host string) bool{
	PlatformItch: func(host string) bool {
		return strings.HasSuffix(host, ".itch.io") || host == "itch.io"
	},
	PlatformCrazyGames: func(host string) bool {
		return host == "crazygames.com" || strings.HasSuffix(host, ".crazygames.com")
	},
}

// CanonicalURL normalizes an Itch or CrazyGames store URL so that links found
// in videos and URLs found on records produce the same key. The scheme is
// forced to https, the host lower-cased, and query, fragment and trailing
// slashes dropped.
func CanonicalURL(p Platform, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty %s url", p)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse %s url %q: %w", p, raw, err)
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	match, ok := platformHosts[p]
	if !ok {
		return "", fmt.Errorf("platform %s has no store urls", p)
	}
	if !match(host) {
		return "", fmt.Errorf("url %q is not a %s url", raw, p)
	}
	path := strings.TrimRight(u.EscapedPath(), "/")
	if path == "" && p == PlatformCrazyGames {
		return "", fmt.Errorf("url %q has no game path", raw)
	}
	if p == PlatformCrazyGames {
		host = "www.crazygames.com"
	}
	return "https://" + host + path, nil
}

// SteamStoreURL returns the public store page for an app id.
func SteamStoreURL(appID string) string {
	return "https://store.steampowered.com/app/" + appID
}
