package catalog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Video is one video reference attached to an entity.
type Video struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Inherited holds display data an absorbed entity borrows from its absorption
// target because its own record has none.
type Inherited struct {
	HeaderImage string  `json:"header_image,omitempty"`
	ReleaseDate string  `json:"release_date,omitempty"`
	Review      *Review `json:"review,omitempty"`
}

// Entity is the ResolvedGameEntity: one platform record plus the links the
// resolver established and the videos that reference it.
type Entity struct {
	Key            Key
	Record         Record
	LinkedDemo     Key
	LinkedFullGame Key
	IsAbsorbed     bool
	AbsorbedInto   Key
	// AbsorbedKeys lists the entities absorbed into this one.
	AbsorbedKeys    []Key
	Inherited       Inherited
	Videos          []Video
	LatestVideoDate time.Time
}

// Name returns the record's name.
func (e *Entity) Name() string { return e.Record.Base().Name }

// Platform returns the record's platform.
func (e *Entity) Platform() Platform { return e.Record.Platform() }

// Steam returns the Steam variant, if the entity is a Steam record.
func (e *Entity) Steam() (*SteamRecord, bool) {
	s, ok := e.Record.(*SteamRecord)
	return s, ok
}

// IsDemo reports whether the entity is a Steam demo. An entity declaring or
// linked to a full game counts as a demo even when the store flag is missing.
func (e *Entity) IsDemo() bool {
	s, ok := e.Steam()
	if !ok {
		return false
	}
	return s.IsDemo || s.FullGameAppID != "" || e.LinkedFullGame != ""
}

// Image returns the entity's own header image, or the inherited one.
func (e *Entity) Image() string {
	if img := e.Record.Base().HeaderImage; img != "" {
		return img
	}
	return e.Inherited.HeaderImage
}

// ReleaseDate returns the entity's own release date, or the inherited one.
func (e *Entity) ReleaseDate() string {
	if d := e.Record.Base().ReleaseDate; d != "" {
		return d
	}
	return e.Inherited.ReleaseDate
}

// Review returns the review block that applies to this entity: Steam's own,
// or the one inherited from an absorption target.
func (e *Entity) Review() (Review, bool) {
	switch rec := e.Record.(type) {
	case *SteamRecord:
		return rec.Review, rec.Review.Rated()
	case *ItchRecord, *CrazyGamesRecord:
		if e.Inherited.Review != nil {
			return *e.Inherited.Review, e.Inherited.Review.Rated()
		}
		return Review{}, false
	default:
		panic(UnknownRecord(e.Record))
	}
}

// Price returns the entity's own price in the preferred currency.
func (e *Entity) Price(currency string) (Price, bool) {
	switch rec := e.Record.(type) {
	case *SteamRecord:
		return rec.Price(currency)
	case *ItchRecord:
		if rec.Price == nil {
			return Price{}, false
		}
		return *rec.Price, true
	case *CrazyGamesRecord:
		if rec.Price == nil {
			return Price{}, false
		}
		return *rec.Price, true
	default:
		panic(UnknownRecord(e.Record))
	}
}

// entityJSON is the wire form of Entity. The record is stored under the key
// of its platform so that decoding can pick the variant.
type entityJSON struct {
	Key             Key               `json:"key"`
	Steam           *SteamRecord      `json:"steam,omitempty"`
	Itch            *ItchRecord       `json:"itch,omitempty"`
	CrazyGames      *CrazyGamesRecord `json:"crazygames,omitempty"`
	LinkedDemo      Key               `json:"linked_demo,omitempty"`
	LinkedFullGame  Key               `json:"linked_full_game,omitempty"`
	IsAbsorbed      bool              `json:"is_absorbed"`
	AbsorbedInto    Key               `json:"absorbed_into,omitempty"`
	AbsorbedKeys    []Key             `json:"absorbed_keys,omitempty"`
	Inherited       *Inherited        `json:"inherited,omitempty"`
	Videos          []Video           `json:"videos"`
	LatestVideoDate time.Time         `json:"latest_video_date"`
}

func (e Entity) MarshalJSON() ([]byte, error) {
	out := entityJSON{
		Key:             e.Key,
		LinkedDemo:      e.LinkedDemo,
		LinkedFullGame:  e.LinkedFullGame,
		IsAbsorbed:      e.IsAbsorbed,
		AbsorbedInto:    e.AbsorbedInto,
		AbsorbedKeys:    e.AbsorbedKeys,
		Videos:          e.Videos,
		LatestVideoDate: e.LatestVideoDate,
	}
	if e.Inherited != (Inherited{}) {
		inh := e.Inherited
		out.Inherited = &inh
	}
	if out.Videos == nil {
		out.Videos = []Video{}
	}
	switch rec := e.Record.(type) {
	case *SteamRecord:
		out.Steam = rec
	case *ItchRecord:
		out.Itch = rec
	case *CrazyGamesRecord:
		out.CrazyGames = rec
	case nil:
		return nil, fmt.Errorf("marshal entity %s: missing record", e.Key)
	default:
		panic(UnknownRecord(e.Record))
	}
	return json.Marshal(out)
}

func (e *Entity) UnmarshalJSON(data []byte) error {
	var in entityJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var rec Record
	set := 0
	if in.Steam != nil {
		rec = in.Steam
		set++
	}
	if in.Itch != nil {
		rec = in.Itch
		set++
	}
	if in.CrazyGames != nil {
		rec = in.CrazyGames
		set++
	}
	if set != 1 {
		return fmt.Errorf("unmarshal entity %s: expected exactly one record variant, got %d", in.Key, set)
	}
	*e = Entity{
		Key:             in.Key,
		Record:          rec,
		LinkedDemo:      in.LinkedDemo,
		LinkedFullGame:  in.LinkedFullGame,
		IsAbsorbed:      in.IsAbsorbed,
		AbsorbedInto:    in.AbsorbedInto,
		AbsorbedKeys:    in.AbsorbedKeys,
		Videos:          in.Videos,
		LatestVideoDate: in.LatestVideoDate,
	}
	if in.Inherited != nil {
		e.Inherited = *in.Inherited
	}
	return nil
}
