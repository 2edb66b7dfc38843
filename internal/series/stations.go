package series

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
)

// Delimiter separates fields in every file this package reads or writes.
const Delimiter = ';'

// LoadStations reads "id;latitude;longitude" rows, skipping the header.
// Row order is preserved and defines the order of every output row.
func LoadStations(path string) ([]domain.Station, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadStations(f)
}

// ReadStations parses stations from r. A malformed row fails the whole read
// and names the line and field.
func ReadStations(r io.Reader) ([]domain.Station, error) {
	cr := csv.NewReader(r)
	cr.Comma = Delimiter
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("station file is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var stations []domain.Station
	seen := make(map[string]int)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stations: %w", err)
		}
		line, _ := cr.FieldPos(0)

		st, err := parseStation(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if prev, dup := seen[st.ID]; dup {
			return nil, fmt.Errorf("line %d: duplicate station id %q (first on line %d)", line, st.ID, prev)
		}
		seen[st.ID] = line
		stations = append(stations, st)
	}
	return stations, nil
}

func parseStation(rec []string) (domain.Station, error) {
	if len(rec) < 3 {
		return domain.Station{}, fmt.Errorf("want 3 fields (id;latitude;longitude), got %d", len(rec))
	}
	id := strings.TrimSpace(rec[0])
	if id == "" {
		return domain.Station{}, errors.New("empty station id")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	if err != nil {
		return domain.Station{}, fmt.Errorf("invalid latitude %q", rec[1])
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	if err != nil {
		return domain.Station{}, fmt.Errorf("invalid longitude %q", rec[2])
	}
	return domain.Station{ID: id, Lat: lat, Lon: lon}, nil
}
