package linelist

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/geoaggregate/internal/config"
	"github.com/couchcryptid/geoaggregate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleCSV = `consult_date,mpc,owner_longitude,owner_latitude,practice_id
1970-01-03,malanders,-3.806693,53.785583,p1
1970-01-01,mastics,-3.806693,53.785583,p1
1970-01-02,salanders,-3.806693,53.785583,p2
1970-01-05,flopbot,-3.806693,53.785583,p1
1970-01-04,flopbot,-3.806693,53.785583,p1
`

func TestRead_SortsByDate(t *testing.T) {
	ll, err := Read(strings.NewReader(exampleCSV), DefaultColumns())
	require.NoError(t, err)

	require.Len(t, ll.Records, 5)
	assert.False(t, ll.SpeciesTracked)
	for i, rec := range ll.Records {
		assert.Equal(t, domain.Day(i), rec.Date)
		assert.InDelta(t, 53.785583, rec.Lat, 1e-9)
		assert.InDelta(t, -3.806693, rec.Lon, 1e-9)
		assert.Empty(t, rec.Species)
	}
	assert.Equal(t, "mastics", ll.Records[0].Category)
	assert.Equal(t, "flopbot", ll.Records[4].Category)
}

func TestRead_Species(t *testing.T) {
	data := "species,consult_date,mpc,owner_latitude,owner_longitude\n" +
		"dog,2024-02-01,gi,51.5,-0.12\n" +
		" cat ,2024-02-01,resp,51.5,-0.12\n"
	ll, err := Read(strings.NewReader(data), DefaultColumns())
	require.NoError(t, err)
	assert.True(t, ll.SpeciesTracked)
	assert.Equal(t, "dog", ll.Records[0].Species)
	assert.Equal(t, " cat ", ll.Records[1].Species, "species kept verbatim")
}

func TestRead_CategoryKeptVerbatim(t *testing.T) {
	data := "consult_date,mpc,owner_latitude,owner_longitude\n" +
		" 2024-02-01 ,flopbot, 51.5 , -0.12 \n" +
		"2024-02-01, flopbot,51.5,-0.12\n"
	ll, err := Read(strings.NewReader(data), DefaultColumns())
	require.NoError(t, err)
	require.Len(t, ll.Records, 2)
	assert.Equal(t, "flopbot", ll.Records[0].Category)
	assert.Equal(t, 51.5, ll.Records[0].Lat)
	assert.Equal(t, " flopbot", ll.Records[1].Category)

	sparse, err := domain.CountCells([]domain.JoinedRecord{
		{Record: ll.Records[0], Zone: "z", Assigned: true},
		{Record: ll.Records[1], Zone: "z", Assigned: true},
	}, []string{"flopbot"})
	require.NoError(t, err)
	got, ok := sparse.Get(domain.CellKey{Date: ll.Records[0].Date, Zone: "z"})
	require.True(t, ok)
	assert.Equal(t, domain.Counts{Total: 2, ByCategory: []int{1}}, got)
}

func TestRead_CustomColumns(t *testing.T) {
	data := "date,code,lat,lon\n2024-02-01,gi,51.5,-0.12\n"
	cols := Columns{Date: "date", Category: "code", Latitude: "lat", Longitude: "lon"}
	ll, err := Read(strings.NewReader(data), cols)
	require.NoError(t, err)
	require.Len(t, ll.Records, 1)
	assert.Equal(t, "gi", ll.Records[0].Category)
	assert.False(t, ll.SpeciesTracked)
}

func TestRead_ByteOrderMark(t *testing.T) {
	data := "\ufeffconsult_date,mpc,owner_latitude,owner_longitude\n2024-02-01,gi,51.5,-0.12\n"
	ll, err := Read(strings.NewReader(data), DefaultColumns())
	require.NoError(t, err)
	assert.Len(t, ll.Records, 1)
}

func TestRead_HeaderOnly(t *testing.T) {
	ll, err := Read(strings.NewReader("consult_date,mpc,owner_latitude,owner_longitude\n"), DefaultColumns())
	require.NoError(t, err)
	assert.Empty(t, ll.Records)
}

func TestRead_Errors(t *testing.T) {
	header := "consult_date,mpc,owner_latitude,owner_longitude\n"
	tests := []struct {
		name    string
		data    string
		wantErr error
		line    string
	}{
		{"empty file", "", domain.ErrEmptyInput, ""},
		{"missing column", "consult_date,mpc,owner_latitude\n", domain.ErrMalformedRecord, ""},
		{"bad date", header + "2024-02-01,gi,51.5,-0.12\n01/02/2024,gi,51.5,-0.12\n", domain.ErrMalformedRecord, "line 3"},
		{"bad latitude", header + "2024-02-01,gi,north,-0.12\n", domain.ErrMalformedRecord, "line 2"},
		{"bad longitude", header + "2024-02-01,gi,51.5,\n", domain.ErrMalformedRecord, "line 2"},
		{"latitude out of range", header + "2024-02-01,gi,95,-0.12\n", domain.ErrMalformedRecord, "line 2"},
		{"NaN coordinate", header + "2024-02-01,gi,NaN,-0.12\n", domain.ErrMalformedRecord, "line 2"},
		{"ragged row", header + "2024-02-01,gi,51.5\n", domain.ErrMalformedRecord, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.data), DefaultColumns())
			require.ErrorIs(t, err, tt.wantErr)
			if tt.line != "" {
				assert.Contains(t, err.Error(), tt.line)
			}
		})
	}
}

func TestSource_Extract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linelist.csv")
	require.NoError(t, os.WriteFile(path, []byte(exampleCSV), 0o600))

	ll, err := NewFileSource(path, DefaultColumns()).Extract(context.Background())
	require.NoError(t, err)
	assert.Len(t, ll.Records, 5)

	ll, err = NewReaderSource(strings.NewReader(exampleCSV), DefaultColumns()).Extract(context.Background())
	require.NoError(t, err)
	assert.Len(t, ll.Records, 5)

	_, err = NewFileSource(filepath.Join(t.TempDir(), "missing.csv"), DefaultColumns()).Extract(context.Background())
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewFileSource(path, DefaultColumns()).Extract(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestColumnsFrom(t *testing.T) {
	cfg := &config.Config{
		ColumnDate:      "date",
		ColumnCategory:  "code",
		ColumnLatitude:  "lat",
		ColumnLongitude: "lon",
	}
	assert.Equal(t, Columns{Date: "date", Category: "code", Latitude: "lat", Longitude: "lon"}, ColumnsFrom(cfg))
}
