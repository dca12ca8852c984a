package resolve

import (
	"errors"
	"fmt"
	"sort"

	"github.com/terrorobe/cubscrape-sub001/pkg/catalog"
)

var (
	// ErrEmptyInput is returned when a rebuild is started without any game
	// records at all.
	ErrEmptyInput = errors.New("resolve: no game records in input")
	// ErrNoValidRecords is returned when every game record was rejected.
	ErrNoValidRecords = errors.New("resolve: every game record was rejected")
)

// MalformedError describes a raw record that violates the record invariants.
type MalformedError struct {
	Subject string
	Reason  string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed record %s: %s", e.Subject, e.Reason)
}

func malformed(subject, format string, args ...any) *MalformedError {
	return &MalformedError{Subject: subject, Reason: fmt.Sprintf(format, args...)}
}

// RejectionKind classifies why an input record was dropped.
type RejectionKind string

const (
	RejectMalformed RejectionKind = "malformed"
	RejectDuplicate RejectionKind = "duplicate"
)

// Rejection is one input record excluded from the entity set.
type Rejection struct {
	Kind    RejectionKind `json:"kind"`
	Subject string        `json:"subject"`
	Reason  string        `json:"reason"`
}

// ConflictKind classifies contradictory input the resolver settled.
type ConflictKind string

const (
	ConflictOrientation ConflictKind = "orientation"
	ConflictCompeting   ConflictKind = "competing"
	ConflictSelfLink    ConflictKind = "self_link"
	ConflictAbsorption  ConflictKind = "absorption"
)

// Conflict records a deterministic decision over contradictory input.
type Conflict struct {
	Kind   ConflictKind  `json:"kind"`
	Keys   []catalog.Key `json:"keys"`
	Winner catalog.Key   `json:"winner,omitempty"`
	Reason string        `json:"reason"`
}

// FetchRequest asks the fetch collaborators to retrieve a record that is
// referenced but missing from the input. The resolver never waits for it.
type FetchRequest struct {
	Key         catalog.Key `json:"key"`
	Reason      string      `json:"reason"`
	RequestedBy []string    `json:"requested_by"`
}

// MatchCase is the evidence behind an absorption.
type MatchCase string

const (
	MatchSharedVideo MatchCase = "shared_video"
	MatchSameChannel MatchCase = "same_channel"
)

// Absorption is one accepted cross-platform merge.
type Absorption struct {
	Source     catalog.Key `json:"source"`
	Target     catalog.Key `json:"target"`
	Case       MatchCase   `json:"case"`
	Similarity float64     `json:"similarity"`
}

// AmbiguousMatch is a same-channel candidate that failed the name gate and
// was left unmerged.
type AmbiguousMatch struct {
	Source     catalog.Key `json:"source"`
	Target     catalog.Key `json:"target"`
	Similarity float64     `json:"similarity"`
}

// Report summarizes one rebuild.
type Report struct {
	GameRecords   int              `json:"game_records"`
	VideoRecords  int              `json:"video_records"`
	Entities      int              `json:"entities"`
	Rejections    []Rejection      `json:"rejections"`
	Conflicts     []Conflict       `json:"conflicts"`
	Absorptions   []Absorption     `json:"absorptions"`
	Ambiguous     []AmbiguousMatch `json:"ambiguous"`
	FetchRequests []FetchRequest   `json:"fetch_requests"`
}

// RejectionsByKind counts rejections per kind.
func (r *Report) RejectionsByKind() map[RejectionKind]int {
	out := make(map[RejectionKind]int)
	for _, rej := range r.Rejections {
		out[rej.Kind]++
	}
	return out
}

// fetchQueue collects fetch requests, one per key.
type fetchQueue struct {
	byKey map[catalog.Key]*FetchRequest
}

func newFetchQueue() *fetchQueue {
	return &fetchQueue{byKey: make(map[catalog.Key]*FetchRequest)}
}

func (q *fetchQueue) add(key catalog.Key, reason, requestedBy string) {
	req, ok := q.byKey[key]
	if !ok {
		req = &FetchRequest{Key: key, Reason: reason}
		q.byKey[key] = req
	}
	for _, existing := range req.RequestedBy {
		if existing == requestedBy {
			return
		}
	}
	req.RequestedBy = append(req.RequestedBy, requestedBy)
}

func (q *fetchQueue) list() []FetchRequest {
	out := make([]FetchRequest, 0, len(q.byKey))
	for _, req := range q.byKey {
		sort.Strings(req.RequestedBy)
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
