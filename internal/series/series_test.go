package series

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
)

var (
	day1 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

type recordingSink struct {
	batches [][]domain.OutputRow
	err     error
}

func (s *recordingSink) Publish(_ context.Context, rows []domain.OutputRow) error {
	s.batches = append(s.batches, rows)
	return s.err
}

func TestPaths(t *testing.T) {
	out, errs := Paths("/data/stations.csv", day1, day2)
	assert.Equal(t, "/data/stations_gpm_2020-01-01_2020-01-02.csv", out)
	assert.Equal(t, "/data/stations_gpm_2020-01-01_2020-01-02_error.csv", errs)

	out, _ = Paths("rel/points", day1, day1)
	assert.Equal(t, "rel/points_gpm_2020-01-01_2020-01-01.csv", out)
}

func TestFormatDecimal(t *testing.T) {
	a, b := 0.1, 0.2
	tests := []struct {
		in   float64
		want string
	}{
		{6, "6.0"},
		{0, "0.0"},
		{1.25, "1.25"},
		{0.5125, "0.5125"},
		{120, "120.0"},
		{a + b, "0.30000000000000004"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDecimal(tt.in), "input %v", tt.in)
	}
}

func TestWriter_CleanRunRemovesErrorFile(t *testing.T) {
	dir := t.TempDir()
	out, errPath := Paths(filepath.Join(dir, "st.csv"), day1, day1)
	sink := &recordingSink{}

	w, err := Create(out, errPath, discardLogger(), sink)
	require.NoError(t, err)

	rows := []domain.OutputRow{
		{StationID: "b", Date: "2020-01-01", PrecipitationMM: 6},
		{StationID: "a", Date: "2020-01-01", PrecipitationMM: 0.5},
	}
	require.NoError(t, w.WriteDay(context.Background(), day1, rows, nil))

	sum, err := w.Close()
	require.NoError(t, err)

	assert.Equal(t, "id;date;total_mm\nb;2020-01-01;6.0\na;2020-01-01;0.5\n", readFile(t, out))
	assert.NoFileExists(t, errPath)
	assert.Equal(t, Summary{OutputPath: out, Days: 1}, sum)
	assert.Equal(t, [][]domain.OutputRow{rows}, sink.batches)
}

func TestWriter_ErrorsAreKept(t *testing.T) {
	dir := t.TempDir()
	out, errPath := Paths(filepath.Join(dir, "st.csv"), day1, day2)

	w, err := Create(out, errPath, discardLogger())
	require.NoError(t, err)

	fail := domain.NewSampleError("img", domain.KindConnectivity, "ftp://h/x.tif", errors.New("timeout"))
	require.NoError(t, w.WriteDay(context.Background(), day1,
		[]domain.OutputRow{{StationID: "s", Date: "2020-01-01", PrecipitationMM: 1}},
		[]*domain.SampleError{fail, fail}))

	// Both files are readable before Close.
	assert.Contains(t, readFile(t, out), "s;2020-01-01;1.0\n")
	assert.Equal(t, 2, strings.Count(readFile(t, errPath), "2020-01-01;"))

	require.NoError(t, w.WriteDay(context.Background(), day2,
		[]domain.OutputRow{{StationID: "s", Date: "2020-01-02", PrecipitationMM: 2}}, nil))

	sum, err := w.Close()
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Errors)
	assert.Equal(t, 2, sum.Days)
	assert.Equal(t, errPath, sum.ErrorPath)
	assert.Equal(t,
		"date;message\n2020-01-01;Url 'ftp://h/x.tif': timeout\n2020-01-01;Url 'ftp://h/x.tif': timeout\n",
		readFile(t, errPath))

	_, err = w.Close()
	require.NoError(t, err, "second Close is a no-op")
	require.Error(t, w.WriteDay(context.Background(), day2, nil, nil))
}

func TestWriter_SinkFailureDoesNotFailDay(t *testing.T) {
	dir := t.TempDir()
	out, errPath := Paths(filepath.Join(dir, "st.csv"), day1, day1)

	w, err := Create(out, errPath, discardLogger(), &recordingSink{err: errors.New("broker down")})
	require.NoError(t, err)
	require.NoError(t, w.WriteDay(context.Background(), day1, nil, nil))
	_, err = w.Close()
	require.NoError(t, err)
}

func TestCreate_UnwritableDirectory(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing", "o.csv"), "e.csv", discardLogger())
	require.Error(t, err)
}

func TestReadStations(t *testing.T) {
	in := "id;lat;lon\nbsb; -15.78; -47.93\n0042;-3.1;-60.02\n\nlast;1;2\n"

	stations, err := ReadStations(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []domain.Station{
		{ID: "bsb", Lat: -15.78, Lon: -47.93},
		{ID: "0042", Lat: -3.1, Lon: -60.02},
		{ID: "last", Lat: 1, Lon: 2},
	}, stations)
}

func TestReadStations_Malformed(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"empty file", "", "station file is empty"},
		{"bad latitude", "id;lat;lon\na;1;2\nb;north;2\n", `line 3: invalid latitude "north"`},
		{"bad longitude", "id;lat;lon\na;1;x\n", `line 2: invalid longitude "x"`},
		{"missing field", "id;lat;lon\na;1\n", "line 2: want 3 fields"},
		{"empty id", "id;lat;lon\n;1;2\n", "line 2: empty station id"},
		{"duplicate id", "id;lat;lon\na;1;2\na;3;4\n", `line 3: duplicate station id "a" (first on line 2)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadStations(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadStations_Missing(t *testing.T) {
	_, err := LoadStations(filepath.Join(t.TempDir(), "nope.csv"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadStations_HeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "st.csv")
	require.NoError(t, os.WriteFile(path, []byte("id;lat;lon\n"), 0o644))

	stations, err := LoadStations(path)
	require.NoError(t, err)
	assert.Empty(t, stations)
}
