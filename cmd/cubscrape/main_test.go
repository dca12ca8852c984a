package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrorobe/cubscrape-sub001/internal/refresh"
	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
	"github.com/terrorobe/cubscrape-sub001/pkg/query"
)

func TestQueryFlagsRequest(t *testing.T) {
	req := queryFlags{
		Platform:   "steam",
		Rating:     80,
		Tags:       []string{"Roguelike", "Deckbuilder"},
		TagLogic:   "or",
		TimeRange:  "week",
		HiddenGems: true,
		Sort:       "name",
		Order:      "asc",
		Limit:      10,
		Offset:     20,
	}.request()

	assert.Equal(t, catalog.PlatformSteam, req.Filter.Platform)
	assert.Equal(t, 80, req.Filter.MinRating)
	assert.Equal(t, []string{"roguelike", "deckbuilder"}, req.Filter.Tags)
	assert.Equal(t, query.LogicOr, req.Filter.TagLogic)
	assert.Equal(t, "week", req.Filter.TimeRange)
	assert.True(t, req.Filter.HiddenGems)
	assert.Equal(t, 10, req.Limit)
	assert.Equal(t, 20, req.Offset)
}

func TestQueryFlagsEmpty(t *testing.T) {
	assert.Empty(t, queryFlags{}.values())
	assert.Equal(t, query.DefaultLimit, queryFlags{}.request().Limit)
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"KEY", "COUNT"}, [][]string{{"steam:1", "12"}, {"itch:x"}}, []columnAlignment{alignLeft, alignRight})
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "steam:1")
	assert.Contains(t, out, "itch:x")

	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestRenderStale(t *testing.T) {
	out := renderStale([]refresh.Due{
		{Key: "steam:1", Name: "Never Seen", Tier: refresh.Daily, Overdue: 3 * time.Hour},
	})
	require.NotEmpty(t, out)
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "3h0m0s")
}
