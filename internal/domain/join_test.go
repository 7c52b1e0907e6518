package domain

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type stubLocator struct {
	labels []string
	calls  int
}

func (s *stubLocator) Locate(p orb.Point) (string, bool) {
	s.calls++
	if p[0] >= 0 && p[0] <= 1 && p[1] >= 0 && p[1] <= 1 {
		return "square", true
	}
	return "", false
}

func (s *stubLocator) Labels() []string { return s.labels }

// --- tests ---

func TestJoin_Modes(t *testing.T) {
	records := []Record{
		{Date: 0, Category: "a", Lat: 0.5, Lon: 0.5},
		{Date: 1, Category: "b", Lat: 5, Lon: 5},
	}
	locator := &stubLocator{labels: []string{"square"}}

	t.Run("inner drops unmatched", func(t *testing.T) {
		joined, stats, err := Join(records, locator, JoinOptions{Mode: JoinInner})
		require.NoError(t, err)
		require.Len(t, joined, 1)
		assert.Equal(t, "square", joined[0].Zone)
		assert.True(t, joined[0].Assigned)
		assert.Equal(t, JoinStats{Assigned: 1, Dropped: 1}, stats)
	})

	t.Run("left keeps unmatched", func(t *testing.T) {
		joined, stats, err := Join(records, locator, JoinOptions{Mode: JoinLeft})
		require.NoError(t, err)
		require.Len(t, joined, 2)
		assert.Equal(t, DefaultUnassignedLabel, joined[1].Zone)
		assert.False(t, joined[1].Assigned)
		assert.Equal(t, JoinStats{Assigned: 1, Unassigned: 1}, stats)
	})

	t.Run("custom unassigned label", func(t *testing.T) {
		joined, _, err := Join(records, locator, JoinOptions{Mode: JoinLeft, UnassignedLabel: "elsewhere"})
		require.NoError(t, err)
		assert.Equal(t, "elsewhere", joined[1].Zone)
	})
}

func TestJoin_LongitudeFirst(t *testing.T) {
	locator := &stubLocator{labels: []string{"square"}}
	// Inside on latitude only; longitude 50 lies outside the square.
	joined, _, err := Join([]Record{{Lat: 0.5, Lon: 50}}, locator, JoinOptions{})
	require.NoError(t, err)
	assert.Empty(t, joined)
}

func TestJoin_UnassignedLabelClash(t *testing.T) {
	locator := &stubLocator{labels: []string{"square", "unassigned"}}
	_, _, err := Join([]Record{{Lat: 0.5, Lon: 0.5}}, locator, JoinOptions{Mode: JoinLeft})
	require.ErrorIs(t, err, ErrConfiguration)

	// Inner mode never emits the label, so the clash is harmless.
	_, _, err = Join([]Record{{Lat: 0.5, Lon: 0.5}}, locator, JoinOptions{Mode: JoinInner})
	require.NoError(t, err)
}

func TestJoin_EmptyZoneSet(t *testing.T) {
	ix, err := NewZoneIndex(nil)
	require.NoError(t, err)
	records := []Record{{Lat: 0.5, Lon: 0.5}, {Lat: 1, Lon: 1}}

	joined, stats, err := Join(records, ix, JoinOptions{Mode: JoinInner})
	require.NoError(t, err)
	assert.Empty(t, joined)
	assert.Equal(t, 2, stats.Dropped)

	joined, stats, err = Join(records, ix, JoinOptions{Mode: JoinLeft})
	require.NoError(t, err)
	assert.Len(t, joined, 2)
	assert.Equal(t, 2, stats.Unassigned)
}

func TestJoin_NilLocator(t *testing.T) {
	_, _, err := Join([]Record{{}}, nil, JoinOptions{})
	require.Error(t, err)
}

func TestJoin_MalformedAbortsBeforeLookup(t *testing.T) {
	locator := &stubLocator{}
	records := []Record{{Lat: 0.5, Lon: 0.5}, {Lat: math.NaN(), Lon: 0.5}}

	joined, _, err := Join(records, locator, JoinOptions{Mode: JoinLeft})
	require.ErrorIs(t, err, ErrMalformedRecord)
	assert.Contains(t, err.Error(), "record 1")
	assert.Nil(t, joined)
	assert.Equal(t, 1, locator.calls)
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr bool
	}{
		{"origin", 0, 0, false},
		{"poles and antimeridian", 90, -180, false},
		{"NaN latitude", math.NaN(), 0, true},
		{"infinite longitude", 0, math.Inf(1), true},
		{"latitude past pole", 90.5, 0, true},
		{"longitude past antimeridian", 0, 181, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(Record{Lat: tt.lat, Lon: tt.lon})
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedRecord)
				return
			}
			require.NoError(t, err)
		})
	}
}
