package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/terrorobe/cubscrape-sub001/internal/refresh"
	"github.com/terrorobe/cubscrape-sub001/internal/snapshot"
	"github.com/terrorobe/cubscrape-sub001/internal/store"
	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
	"github.com/terrorobe/cubscrape-sub001/pkg/display"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// tableStyle is rounded on a terminal and plain ASCII when piped.
var tableStyle = func() table.Style {
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return table.StyleRounded
	}
	return table.StyleDefault
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(tableStyle())

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			WidthMax:    48,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func renderReport(meta snapshot.Meta) string {
	r := meta.Report
	rejected := r.RejectionsByKind()
	rows := [][]string{
		{"snapshot", meta.ID},
		{"built", meta.BuiltAt.Format(time.RFC3339)},
		{"game records", humanize.Comma(int64(r.GameRecords))},
		{"video records", humanize.Comma(int64(r.VideoRecords))},
		{"entities", humanize.Comma(int64(meta.Entities))},
		{"visible", humanize.Comma(int64(meta.Visible))},
		{"videos", humanize.Comma(int64(meta.Videos))},
		{"rejected (malformed)", humanize.Comma(int64(rejected["malformed"]))},
		{"rejected (duplicate)", humanize.Comma(int64(rejected["duplicate"]))},
		{"conflicts", humanize.Comma(int64(len(r.Conflicts)))},
		{"absorptions", humanize.Comma(int64(len(r.Absorptions)))},
		{"ambiguous matches", humanize.Comma(int64(len(r.Ambiguous)))},
		{"fetch requests", humanize.Comma(int64(len(r.FetchRequests)))},
	}
	return renderTable([]string{"REBUILD", "VALUE"}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderGames(page snapshot.Page, currency string, now time.Time) string {
	rows := make([][]string, 0, len(page.Items))
	for _, it := range page.Items {
		e := it.Entity
		rating := "-"
		if rv, ok := e.Review(); ok && rv.Rated() {
			rating = fmt.Sprintf("%d%% (%s)", *rv.Percentage, humanize.Comma(int64(rv.Count)))
		}
		price := "-"
		if p, ok := e.Price(currency); ok {
			price = p.Display
		}
		latest := "-"
		if it.LatestVideoDate != nil {
			latest = humanize.RelTime(*it.LatestVideoDate, now, "ago", "from now")
		}
		rows = append(rows, []string{
			string(e.Key),
			e.Name(),
			platformList(it.Platforms),
			string(it.DisplayState),
			rating,
			price,
			fmt.Sprintf("%d", it.VideoCount),
			latest,
		})
	}
	return renderTable(
		[]string{"KEY", "NAME", "PLATFORMS", "STATE", "RATING", "PRICE", "VIDEOS", "LATEST VIDEO"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}

func renderCard(e *catalog.Entity, card display.Card) string {
	rows := [][]string{
		{"key", string(card.Key)},
		{"name", card.Name},
		{"state", string(card.State)},
		{"status", card.StatusText},
	}
	if card.ReleaseText != "" {
		rows = append(rows, []string{"release", card.ReleaseText})
	}
	if card.PriceDisplay != "" {
		rows = append(rows, []string{"price", card.PriceDisplay})
	}
	if card.Rating != nil {
		rows = append(rows, []string{"rating", fmt.Sprintf("%d%% of %s reviews", *card.Rating, humanize.Comma(int64(card.ReviewCount)))})
	}
	rows = append(rows, []string{card.PrimaryLink.Label, card.PrimaryLink.URL})
	if card.SecondaryLink != nil {
		rows = append(rows, []string{card.SecondaryLink.Label, card.SecondaryLink.URL})
	}
	if e.IsAbsorbed {
		rows = append(rows, []string{"absorbed into", string(e.AbsorbedInto)})
	}
	if len(e.AbsorbedKeys) > 0 {
		keys := make([]string, len(e.AbsorbedKeys))
		for i, k := range e.AbsorbedKeys {
			keys[i] = string(k)
		}
		rows = append(rows, []string{"also on", strings.Join(keys, ", ")})
	}
	return renderTable([]string{"FIELD", "VALUE"}, rows, nil)
}

func renderVideos(videos []catalog.Video, now time.Time) string {
	rows := make([][]string, 0, len(videos))
	for _, v := range videos {
		channel := v.ChannelName
		if channel == "" {
			channel = v.ChannelID
		}
		rows = append(rows, []string{
			humanize.RelTime(v.PublishedAt, now, "ago", "from now"),
			channel,
			v.Title,
			v.ID,
		})
	}
	return renderTable([]string{"PUBLISHED", "CHANNEL", "TITLE", "VIDEO"}, rows, nil)
}

func renderStale(due []refresh.Due) string {
	rows := make([][]string, 0, len(due))
	for _, d := range due {
		last := "never"
		if !d.LastFetched.IsZero() {
			last = humanize.Time(d.LastFetched)
		}
		rows = append(rows, []string{
			string(d.Key),
			d.Name,
			string(d.Tier),
			last,
			d.Overdue.Round(time.Hour).String(),
		})
	}
	return renderTable(
		[]string{"KEY", "NAME", "TIER", "LAST FETCHED", "OVERDUE"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func renderRequests(reqs []store.FetchRequest, now time.Time) string {
	rows := make([][]string, 0, len(reqs))
	for _, r := range reqs {
		status := "pending"
		if r.FetchedAt != nil {
			status = "fetched " + humanize.RelTime(*r.FetchedAt, now, "ago", "from now")
		}
		rows = append(rows, []string{
			string(r.Key),
			r.Reason,
			fmt.Sprintf("%d", r.Times),
			humanize.RelTime(r.LastRequested, now, "ago", "from now"),
			strings.Join(r.RequestedBy, ", "),
			status,
		})
	}
	return renderTable(
		[]string{"KEY", "REASON", "TIMES", "LAST REQUESTED", "REQUESTED BY", "STATUS"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
	)
}

func platformList(ps []catalog.Platform) string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return strings.Join(out, ", ")
}
