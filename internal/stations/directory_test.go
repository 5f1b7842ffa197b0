package stations

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var feedFiles = map[string]string{
	"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
		"db,DB Fernverkehr,https://www.bahn.de,Europe/Berlin\n",
	"routes.txt": "route_id,agency_id,route_short_name,route_type\n" +
		"ice,db,ICE,2\n",
	"stops.txt": "stop_id,stop_name,stop_lat,stop_lon,location_type,parent_station\n" +
		"8000152,Hannover Hbf,52.376761,9.741021,1,\n" +
		"8000152_1,Hannover Hbf Gleis 1,52.376761,9.741021,0,8000152\n" +
		"8000096,Stuttgart Hbf,48.784081,9.181636,1,\n" +
		"8000105,Frankfurt(Main)Hbf,50.107145,8.663789,1,\n" +
		"8002549,Hamburg Hbf,53.552736,10.006909,1,\n" +
		"8000191,Karlsruhe Hbf,48.993512,8.401848,1,\n",
	"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
		"daily,1,1,1,1,1,1,1,20260101,20261231\n",
	"trips.txt": "route_id,service_id,trip_id\n" +
		"ice,daily,ice571\n",
	"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"ice571,10:04:00,10:04:00,8000152_1,1\n" +
		"ice571,14:31:00,14:31:00,8000096,2\n",
}

func buildFeed(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range feedFiles {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFromGTFSFoldsPlatforms(t *testing.T) {
	dir, err := FromGTFS(buildFeed(t))
	require.NoError(t, err)

	assert.Equal(t, 5, dir.Len())
	station, ok := dir.Resolve("  hannover   HBF ")
	require.True(t, ok)
	assert.Equal(t, "8000152", station.ID)
	require.NotNil(t, station.Lat)
	assert.InDelta(t, 52.376761, *station.Lat, 1e-6)

	_, ok = dir.Resolve("Hannover Hbf Gleis 1")
	assert.False(t, ok)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.zip")
	require.NoError(t, os.WriteFile(path, buildFeed(t), 0o600))

	dir, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 5, dir.Len())

	_, err = Load(context.Background(), filepath.Join(t.TempDir(), "missing.zip"))
	assert.Error(t, err)
}

func TestSuggest(t *testing.T) {
	dir := NewDirectory([]Station{
		{ID: "1", Name: "Hamburg Hbf"},
		{ID: "2", Name: "Hannover Hbf"},
		{ID: "3", Name: "Stuttgart Hbf"},
		{ID: "4", Name: "Bad Hannover"},
		{ID: "5", Name: "hannover hbf"},
	})

	tests := []struct {
		name  string
		query string
		max   int
		want  []string
	}{
		{name: "prefix before substring", query: "hann", max: 10, want: []string{"2", "4"}},
		{name: "shared prefix sorted by name", query: "ha", max: 10, want: []string{"1", "2", "4"}},
		{name: "limited", query: "hbf", max: 2, want: []string{"1", "2"}},
		{name: "empty query", query: " ", max: 10, want: []string{}},
		{name: "no match", query: "xyz", max: 10, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := []string{}
			for _, s := range dir.Suggest(tt.query, tt.max) {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
	assert.Equal(t, 4, dir.Len(), "duplicate names are dropped")
}
