package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrorobe/cubscrape-sub001/pkg/resolve"
)

func TestObserveRebuild(t *testing.T) {
	m := New()
	m.ObserveRebuild(resolve.Report{
		GameRecords:  5,
		VideoRecords: 7,
		Rejections: []resolve.Rejection{
			{Kind: resolve.RejectMalformed}, {Kind: resolve.RejectMalformed}, {Kind: resolve.RejectDuplicate},
		},
		Conflicts:     []resolve.Conflict{{Kind: resolve.ConflictOrientation}},
		Absorptions:   []resolve.Absorption{{Case: resolve.MatchSharedVideo}},
		FetchRequests: []resolve.FetchRequest{{Key: "steam:1"}, {Key: "steam:2"}},
	}, 2*time.Second)
	m.RebuildFailed()
	m.SetSnapshot(10, 8)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RebuildsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RebuildsTotal.WithLabelValues("error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("game")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConflictsTotal.WithLabelValues("orientation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AbsorptionsTotal.WithLabelValues("shared_video")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchRequestsTotal))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.Entities))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.VisibleEntities))
}

func TestObserveQuery(t *testing.T) {
	m := New()
	m.ObserveQuery(time.Millisecond, false)
	m.ObserveQuery(time.Microsecond, true)
	m.ObserveQuery(time.Microsecond, true)

	assert.Equal(t, 2, testutil.CollectAndCount(m.QueryDuration))

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "cubscrape_query_duration_seconds" {
			found = true
			for _, metric := range f.GetMetric() {
				if metric.GetLabel()[0].GetValue() == "hit" {
					assert.Equal(t, uint64(2), metric.GetHistogram().GetSampleCount())
				}
			}
		}
	}
	assert.True(t, found)
}

func TestObserveNotification(t *testing.T) {
	m := New()
	m.ObserveNotification("slack", nil)
	m.ObserveNotification("slack", errors.New("status 500"))
	m.ObserveNotification("slack", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("slack", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("slack", "error")))
}
