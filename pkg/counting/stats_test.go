package counting

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/cyclopcam/linecount/pkg/nn"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	s := Stats{}
	s.increment(nn.VehicleCar)
	s.increment(nn.VehicleCar)
	s.increment(nn.VehicleBicycle)
	counts, updated := s.Snapshot()
	require.False(t, updated.IsZero())

	expect := "car: 2\ntruck: 0\nbus: 0\nmotorcycle: 0\nbicycle: 1\ntotal: 3\n"
	require.Equal(t, expect, counts.Report())

	buf := bytes.Buffer{}
	require.NoError(t, counts.WriteReport(&buf))
	require.Equal(t, expect, buf.String())

	s.reset()
	counts, _ = s.Snapshot()
	require.Equal(t, Counts{}, counts)
}

func TestCountsJSON(t *testing.T) {
	c := Counts{}
	c.PerClass[nn.VehicleTruck] = 4
	c.PerClass[nn.VehicleBus] = 1
	c.Total = 5
	b, err := json.Marshal(c)
	require.NoError(t, err)
	require.JSONEq(t, `{"car":0,"truck":4,"bus":1,"motorcycle":0,"bicycle":0,"total":5}`, string(b))

	// The total is recomputed on the way in, so that it can never disagree with the classes
	var back Counts
	require.NoError(t, json.Unmarshal([]byte(`{"truck":4,"bus":1,"total":99}`), &back))
	if diff := cmp.Diff(c, back); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%v", diff)
	}

	require.Error(t, json.Unmarshal([]byte(`{"tank":1}`), &back))
}

func TestReportFilename(t *testing.T) {
	ts := time.Date(2024, 3, 7, 14, 5, 9, 0, time.UTC)
	require.Equal(t, "vehicle_statistics_20240307_140509.txt", ReportFilename(ts))
}

func TestTrackStore(t *testing.T) {
	s := NewTrackStore()
	require.Nil(t, s.Get(3))
	r := s.GetOrCreate(3)
	require.False(t, r.HasClass)
	require.False(t, r.HasSide)
	r.Counted = true
	require.Same(t, r, s.GetOrCreate(3))
	require.True(t, s.Get(3).Counted)
	require.Equal(t, 1, s.Len())
	s.Clear()
	require.Equal(t, 0, s.Len())
	require.Nil(t, s.Get(3))
}
