// Package notify announces finished rebuilds and outstanding fetch requests.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/terrorobe/cubscrape-sub001/pkg/resolve"
)

// maxListed caps the fetch requests listed in chat messages.
const maxListed = 5

// Kind classifies a notification.
type Kind string

const (
	KindRebuild Kind = "rebuild"
	KindFailure Kind = "rebuild_failed"
)

// Notification is the data sent to notification destinations.
type Notification struct {
	Kind          Kind                   `json:"kind"`
	Title         string                 `json:"title"`
	Body          string                 `json:"body"`
	SnapshotID    string                 `json:"snapshot_id,omitempty"`
	BuiltAt       time.Time              `json:"built_at"`
	Counts        map[string]int         `json:"counts,omitempty"`
	FetchRequests []resolve.FetchRequest `json:"fetch_requests,omitempty"`
}

// RebuildSummary describes a finished rebuild.
func RebuildSummary(snapshotID string, builtAt time.Time, visible int, report resolve.Report) *Notification {
	rejections := report.RejectionsByKind()
	counts := map[string]int{
		"game_records":   report.GameRecords,
		"video_records":  report.VideoRecords,
		"entities":       report.Entities,
		"visible":        visible,
		"malformed":      rejections[resolve.RejectMalformed],
		"duplicates":     rejections[resolve.RejectDuplicate],
		"conflicts":      len(report.Conflicts),
		"absorptions":    len(report.Absorptions),
		"ambiguous":      len(report.Ambiguous),
		"fetch_requests": len(report.FetchRequests),
	}
	body := fmt.Sprintf("%s games from %s records and %s videos. %s rejected, %s conflicts settled, %s merged across platforms.",
		humanize.Comma(int64(visible)),
		humanize.Comma(int64(report.GameRecords)),
		humanize.Comma(int64(report.VideoRecords)),
		humanize.Comma(int64(len(report.Rejections))),
		humanize.Comma(int64(len(report.Conflicts))),
		humanize.Comma(int64(len(report.Absorptions))))
	if n := len(report.FetchRequests); n > 0 {
		body += fmt.Sprintf(" %s missing %s requested.", humanize.Comma(int64(n)), plural(n, "record", "records"))
	}
	return &Notification{
		Kind:          KindRebuild,
		Title:         "Catalog rebuilt",
		Body:          body,
		SnapshotID:    snapshotID,
		BuiltAt:       builtAt.UTC(),
		Counts:        counts,
		FetchRequests: report.FetchRequests,
	}
}

// RebuildFailure describes a rebuild that produced no snapshot.
func RebuildFailure(at time.Time, err error) *Notification {
	return &Notification{
		Kind:    KindFailure,
		Title:   "Catalog rebuild failed",
		Body:    err.Error(),
		BuiltAt: at.UTC(),
	}
}

// fetchLines renders the first fetch requests as short lines.
func (n *Notification) fetchLines(format func(resolve.FetchRequest) string) []string {
	var lines []string
	for i, r := range n.FetchRequests {
		if i == maxListed {
			lines = append(lines, fmt.Sprintf("and %d more", len(n.FetchRequests)-maxListed))
			break
		}
		lines = append(lines, format(r))
	}
	return lines
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// Notifier delivers notifications to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// Observer is told the outcome of every delivery.
type Observer func(notifier string, err error)

// Manager broadcasts notifications to all registered notifiers.
type Manager struct {
	notifiers []Notifier
	observe   Observer
}

// NewManager creates a new notification manager. observe may be nil.
func NewManager(notifiers []Notifier, observe Observer) *Manager {
	return &Manager{notifiers: notifiers, observe: observe}
}

// HasNotifiers returns true if at least one notifier is configured.
func (m *Manager) HasNotifiers() bool {
	return len(m.notifiers) > 0
}

// Names lists the configured notifiers.
func (m *Manager) Names() []string {
	names := make([]string, len(m.notifiers))
	for i, n := range m.notifiers {
		names[i] = n.Name()
	}
	return names
}

// Broadcast sends a notification to all registered notifiers.
func (m *Manager) Broadcast(ctx context.Context, n *Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		err := notifier.Send(ctx, n)
		if m.observe != nil {
			m.observe(notifier.Name(), err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", notifier.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
