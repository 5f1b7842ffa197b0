// Package stations offers station name lookup backed by the stops of a
// GTFS static feed.
package stations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jamespfennell/gtfs"
)

type Station struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Lat  *float64 `json:"lat,omitempty"`
	Lon  *float64 `json:"lon,omitempty"`
}

// Directory is immutable after construction and safe for concurrent use.
type Directory struct {
	stations []Station
	byName   map[string]Station
}

// NewDirectory indexes stations by name. The first station wins when
// several share a name.
func NewDirectory(stations []Station) *Directory {
	d := &Directory{byName: make(map[string]Station, len(stations))}
	for _, s := range stations {
		key := normalize(s.Name)
		if key == "" {
			continue
		}
		if _, ok := d.byName[key]; ok {
			continue
		}
		d.byName[key] = s
		d.stations = append(d.stations, s)
	}
	sort.SliceStable(d.stations, func(i, j int) bool {
		return normalize(d.stations[i].Name) < normalize(d.stations[j].Name)
	})
	return d
}

// FromGTFS builds a directory from a zipped GTFS static feed. Platforms
// are folded into their parent station.
func FromGTFS(data []byte) (*Directory, error) {
	static, err := gtfs.ParseStatic(data, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("error parsing GTFS feed: %w", err)
	}

	stations := make([]Station, 0, len(static.Stops))
	for _, stop := range static.Stops {
		if stop.Parent != nil {
			continue
		}
		stations = append(stations, Station{
			ID:   stop.Id,
			Name: strings.TrimSpace(stop.Name),
			Lat:  stop.Latitude,
			Lon:  stop.Longitude,
		})
	}
	return NewDirectory(stations), nil
}

// Load reads a GTFS feed from a local path or an http(s) URL.
func Load(ctx context.Context, source string) (*Directory, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = download(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading GTFS feed %s: %w", source, err)
	}
	return FromGTFS(data)
}

func download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (d *Directory) Len() int {
	return len(d.stations)
}

// Resolve finds a station by its exact name, ignoring case and spacing.
func (d *Directory) Resolve(name string) (Station, bool) {
	s, ok := d.byName[normalize(name)]
	return s, ok
}

// Suggest returns up to max stations whose name contains query. Names
// starting with query come first.
func (d *Directory) Suggest(query string, max int) []Station {
	q := normalize(query)
	if q == "" || max <= 0 {
		return []Station{}
	}

	var prefix, contains []Station
	for _, s := range d.stations {
		name := normalize(s.Name)
		switch {
		case strings.HasPrefix(name, q):
			prefix = append(prefix, s)
		case strings.Contains(name, q):
			contains = append(contains, s)
		}
	}

	result := make([]Station, 0, len(prefix)+len(contains))
	result = append(result, prefix...)
	result = append(result, contains...)
	if len(result) > max {
		result = result[:max]
	}
	return result
}

func normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
