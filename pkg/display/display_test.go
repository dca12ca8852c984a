package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

func price(display string, amount float64) catalog.Price {
	return catalog.Price{Display: display, Amount: &amount}
}

func pct(v int) *int { return &v }

type world map[catalog.Key]*catalog.Entity

func (w world) lookup(k catalog.Key) (*catalog.Entity, bool) {
	e, ok := w[k]
	return e, ok
}

func (w world) add(e *catalog.Entity) *catalog.Entity {
	e.Key = e.Record.Key()
	w[e.Key] = e
	return e
}

// demoPair builds a full game 100 and its demo 200.
func demoPair(w world, comingSoon bool) (full, demo *catalog.Entity) {
	full = w.add(&catalog.Entity{
		Record: &catalog.SteamRecord{
			Info:       catalog.Info{Name: "Deck Hero", HeaderImage: "full.jpg"},
			AppID:      "100",
			ComingSoon: comingSoon,
			Prices:     map[string]catalog.Price{"USD": price("$14.99", 14.99)},
			DemoAppID:  "200",
		},
		LinkedDemo: "steam:200",
	})
	demo = w.add(&catalog.Entity{
		Record: &catalog.SteamRecord{
			Info:          catalog.Info{Name: "Deck Hero Demo", HeaderImage: "demo.jpg"},
			AppID:         "200",
			IsDemo:        true,
			IsFree:        true,
			Review:        catalog.Review{Percentage: pct(92), Count: 50},
			FullGameAppID: "100",
		},
		LinkedFullGame: "steam:100",
	})
	return full, demo
}

func TestDemoPreferredScenario(t *testing.T) {
	w := world{}
	full, demo := demoPair(w, true)

	card := Resolve(full, w.lookup)
	assert.Equal(t, DemoPreferred, card.State)
	assert.Equal(t, "demo.jpg", card.Image)
	require.NotNil(t, card.Rating)
	assert.Equal(t, 92, *card.Rating)
	assert.Equal(t, 50, card.ReviewCount)
	assert.Equal(t, "$14.99", card.PriceDisplay)
	assert.Equal(t, "Coming Soon", card.StatusText)
	assert.Equal(t, ClassComingSoon, card.StatusClass)
	assert.Equal(t, catalog.SteamStoreURL("100"), card.PrimaryLink.URL)
	require.NotNil(t, card.SecondaryLink)
	assert.Equal(t, catalog.SteamStoreURL("200"), card.SecondaryLink.URL)

	assert.Equal(t, card, Resolve(demo, w.lookup))
}

func TestFullWithDemo(t *testing.T) {
	w := world{}
	full, _ := demoPair(w, false)
	full.Record.(*catalog.SteamRecord).IsEarlyAccess = true

	card := Resolve(full, w.lookup)
	assert.Equal(t, FullWithDemo, card.State)
	assert.Equal(t, "full.jpg", card.Image)
	assert.Equal(t, "Early Access", card.StatusText)
	require.NotNil(t, card.SecondaryLink)
	assert.Equal(t, "Demo available", card.SecondaryLink.Label)
	assert.Nil(t, card.Rating)
}

func TestUnifiedReleased(t *testing.T) {
	w := world{}
	_, demo := demoPair(w, false)

	card := Resolve(demo, w.lookup)
	assert.Equal(t, UnifiedReleased, card.State)
	assert.Equal(t, catalog.Key("steam:100"), card.Key)
	assert.Equal(t, "Deck Hero", card.Name)
	assert.Equal(t, "full.jpg", card.Image)
	assert.Equal(t, "$14.99", card.PriceDisplay)
	assert.Equal(t, "Released", card.StatusText)
	assert.Nil(t, card.SecondaryLink)
}

func TestDemoStandalone(t *testing.T) {
	w := world{}
	_, demo := demoPair(w, false)
	delete(w, "steam:100")

	card := Resolve(demo, w.lookup)
	assert.Equal(t, DemoStandalone, card.State)
	assert.Equal(t, "Demo", card.StatusText)
	assert.Equal(t, "demo.jpg", card.Image)
	assert.Equal(t, "Free", card.PriceDisplay)

	flagged := w.add(&catalog.Entity{Record: &catalog.SteamRecord{Info: catalog.Info{Name: "Solo Demo"}, AppID: "300", IsDemo: true}})
	assert.Equal(t, DemoStandalone, Classify(flagged, nil))
}

func TestSingleAndAbsorbed(t *testing.T) {
	w := world{}
	steam := w.add(&catalog.Entity{
		Record: &catalog.SteamRecord{Info: catalog.Info{Name: "Deck Hero", HeaderImage: "steam.jpg"}, AppID: "300"},
	})
	proto := w.add(&catalog.Entity{
		Record:       &catalog.ItchRecord{Info: catalog.Info{Name: "Proto"}, URL: "https://dev.itch.io/proto"},
		IsAbsorbed:   true,
		AbsorbedInto: "steam:300",
		Inherited:    catalog.Inherited{HeaderImage: "steam.jpg"},
	})
	tanks := w.add(&catalog.Entity{
		Record: &catalog.CrazyGamesRecord{Info: catalog.Info{Name: "Tanks"}, URL: "https://www.crazygames.com/game/tanks"},
	})

	assert.Equal(t, Single, Resolve(steam, w.lookup).State)

	card := Resolve(proto, w.lookup)
	assert.Equal(t, Single, card.State)
	assert.Equal(t, "https://dev.itch.io/proto", card.PrimaryLink.URL)
	assert.Equal(t, "steam.jpg", card.Image)
	require.NotNil(t, card.SecondaryLink)
	assert.Equal(t, catalog.SteamStoreURL("300"), card.SecondaryLink.URL)

	card = Resolve(tanks, w.lookup)
	assert.Equal(t, ClassCrazyGames, card.StatusClass)
	assert.Empty(t, card.PriceDisplay)
}

func TestEveryEntityClassifies(t *testing.T) {
	w := world{}
	demoPair(w, true)
	w.add(&catalog.Entity{Record: &catalog.SteamRecord{Info: catalog.Info{Name: "A"}, AppID: "1"}})
	w.add(&catalog.Entity{Record: &catalog.SteamRecord{Info: catalog.Info{Name: "B"}, AppID: "2", IsDemo: true}})
	w.add(&catalog.Entity{Record: &catalog.ItchRecord{Info: catalog.Info{Name: "C"}, URL: "https://x.itch.io/c"}})

	valid := make(map[State]bool)
	for _, s := range States() {
		valid[s] = true
	}
	for _, e := range w {
		card := Resolve(e, w.lookup, WithCurrency("EUR"))
		assert.True(t, valid[card.State], "%s has state %q", e.Key, card.State)
	}
}
