package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/gpm-precipitation-etl/internal/domain"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/observability"
	"github.com/couchcryptid/gpm-precipitation-etl/internal/raster"
)

const testEmail = "jane.doe@example.org"

var testDay = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// --- mocks ---

type fakeArchive struct {
	mu      sync.Mutex
	files   map[string][]byte // remote path -> payload
	down    bool
	stats   int
	fetches int
	users   []string
	// truncate, when > 0, cuts every transfer after that many bytes.
	truncate int
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{files: make(map[string][]byte)}
}

func (f *fakeArchive) put(path string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = payload
}

func (f *fakeArchive) lookup(u *url.URL) ([]byte, error) {
	f.users = append(f.users, u.User.Username())
	if f.down {
		return nil, errors.New("dial tcp: i/o timeout")
	}
	b, ok := f.files[u.Path]
	if !ok {
		return nil, errors.New("550 No such file")
	}
	return b, nil
}

func (f *fakeArchive) Stat(_ context.Context, u *url.URL) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats++
	b, err := f.lookup(u)
	return int64(len(b)), err
}

func (f *fakeArchive) Fetch(_ context.Context, u *url.URL, dst io.Writer) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	b, err := f.lookup(u)
	if err != nil {
		return 0, err
	}
	if f.truncate > 0 && f.truncate < len(b) {
		b = b[:f.truncate]
	}
	n, err := dst.Write(b)
	return int64(n), err
}

// fileOpener treats any local file not containing "corrupt" as a valid
// constant raster, and serves /vsicurl/ locators from a set of known URLs.
type fileOpener struct {
	mu     sync.Mutex
	remote map[string]bool
	opened []string
}

func (o *fileOpener) Open(locator string) (raster.Raster, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, locator)

	if strings.HasPrefix(locator, "/vsicurl/") {
		if !o.remote[locator] {
			return nil, errors.New("HTTP response code: 550")
		}
		return raster.NewConstantMemory(locator, domain.GeoTransform{-180, 0.1, 0, 90, 0, -0.1}, 3600, 1800, 1), nil
	}
	b, err := os.ReadFile(locator)
	if err != nil {
		return nil, err
	}
	if strings.Contains(string(b), "corrupt") {
		return nil, fmt.Errorf("'%s' not recognized as a supported file format", locator)
	}
	return raster.NewConstantMemory(locator, domain.GeoTransform{-180, 0.1, 0, 90, 0, -0.1}, 3600, 1800, 1), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func firstWindow() domain.AcquisitionWindow {
	for w := range domain.WindowsForDay(testDay) {
		return w
	}
	panic("no windows")
}

func newDownload(t *testing.T, fa *fakeArchive, keep bool) (*DownloadSource, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetricsForTesting()
	s := NewDownloadSource(Options{
		Archive:       domain.DefaultArchive(),
		Email:         testEmail,
		CacheDir:      t.TempDir(),
		KeepDownloads: keep,
		Timeout:       time.Second,
	}, fa, &fileOpener{}, discardLogger(), m)
	return s, m
}

// --- tests ---

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Download")
	require.NoError(t, err)
	assert.Equal(t, ModeDownload, m)

	m, err = ParseMode(" stream ")
	require.NoError(t, err)
	assert.Equal(t, ModeStream, m)

	_, err = ParseMode("s3")
	require.Error(t, err)
}

func TestNew_SelectsStrategy(t *testing.T) {
	m := observability.NewMetricsForTesting()

	s, err := New(ModeDownload, Options{}, newFakeArchive(), &fileOpener{}, discardLogger(), m)
	require.NoError(t, err)
	assert.IsType(t, &DownloadSource{}, s)

	s, err = New(ModeStream, Options{}, newFakeArchive(), &fileOpener{}, discardLogger(), m)
	require.NoError(t, err)
	assert.IsType(t, &StreamSource{}, s)

	_, err = New("bogus", Options{}, newFakeArchive(), &fileOpener{}, discardLogger(), m)
	require.Error(t, err)
}

func TestDownloadSource_Resolve_Fetches(t *testing.T) {
	fa := newFakeArchive()
	w := firstWindow()
	a := domain.DefaultArchive()
	fa.put(a.RemotePath(w), []byte("tiff"))

	s, m := newDownload(t, fa, false)
	res, err := s.Resolve(context.Background(), w)
	require.NoError(t, err)

	assert.Equal(t, a.ImageName(w), res.Name)
	assert.Equal(t, s.CachePath(w), res.Locator)
	assert.False(t, res.Cached)
	assert.True(t, res.Local)
	assert.FileExists(t, res.Locator)
	assert.Equal(t, 1, fa.fetches)
	assert.Equal(t, []string{testEmail, testEmail}, fa.users)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImagesResolved.WithLabelValues("download", "success")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.FetchBytes))

	// No temporary files remain next to the cached image.
	entries, err := os.ReadDir(filepath.Dir(res.Locator))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDownloadSource_Resolve_CacheHitSkipsNetwork(t *testing.T) {
	fa := newFakeArchive()
	fa.down = true
	w := firstWindow()

	s, m := newDownload(t, fa, true)
	require.NoError(t, os.WriteFile(s.CachePath(w), []byte("tiff"), 0o644))

	res, err := s.Resolve(context.Background(), w)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Zero(t, fa.stats)
	assert.Zero(t, fa.fetches)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImagesResolved.WithLabelValues("download", "cached")))
}

func TestDownloadSource_Resolve_ShortTransferIsNotCached(t *testing.T) {
	fa := newFakeArchive()
	fa.truncate = 2
	w := firstWindow()
	fa.put(domain.DefaultArchive().RemotePath(w), []byte("tiff"))

	s, m := newDownload(t, fa, true)
	_, err := s.Resolve(context.Background(), w)
	require.Error(t, err)

	var se *domain.SampleError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.KindConnectivity, se.Kind)
	assert.Contains(t, err.Error(), "got 2 of 4 bytes")
	assert.NoFileExists(t, s.CachePath(w))
	assert.Zero(t, testutil.ToFloat64(m.FetchBytes))

	entries, err := os.ReadDir(filepath.Dir(s.CachePath(w)))
	require.NoError(t, err)
	assert.Empty(t, entries, "partial download is removed")
}

func TestDownloadSource_Resolve_EmptyCacheFileIsRefetched(t *testing.T) {
	fa := newFakeArchive()
	w := firstWindow()
	fa.put(domain.DefaultArchive().RemotePath(w), []byte("tiff"))

	s, _ := newDownload(t, fa, false)
	require.NoError(t, os.WriteFile(s.CachePath(w), nil, 0o644))

	res, err := s.Resolve(context.Background(), w)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 1, fa.fetches)
}

func TestDownloadSource_Resolve_ConnectivityError(t *testing.T) {
	fa := newFakeArchive()
	fa.down = true
	w := firstWindow()

	s, m := newDownload(t, fa, false)
	_, err := s.Resolve(context.Background(), w)
	require.Error(t, err)

	var se *domain.SampleError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.KindConnectivity, se.Kind)
	assert.Equal(t, domain.DefaultArchive().ImageName(w), se.Window)
	assert.Contains(t, se.Message, "i/o timeout")
	assert.NotContains(t, se.Message, "example.org:jane", "password must be redacted")
	assert.Zero(t, fa.fetches, "no transfer after a failed reachability check")
	assert.NoFileExists(t, s.CachePath(w))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImagesResolved.WithLabelValues("download", "error")))
}

func TestDownloadSource_Resolve_MissingRemoteFile(t *testing.T) {
	s, _ := newDownload(t, newFakeArchive(), false)

	_, err := s.Resolve(context.Background(), firstWindow())
	require.Error(t, err)
	assert.Equal(t, domain.KindConnectivity, domain.KindOf(err))
	assert.Contains(t, err.Error(), "550 No such file")
}

func TestDownloadSource_Resolve_CorruptDownloadIsDeleted(t *testing.T) {
	fa := newFakeArchive()
	w := firstWindow()
	fa.put(domain.DefaultArchive().RemotePath(w), []byte("corrupt"))

	s, _ := newDownload(t, fa, true)
	_, err := s.Resolve(context.Background(), w)
	require.Error(t, err)

	assert.Equal(t, domain.KindDecoding, domain.KindOf(err))
	assert.Contains(t, err.Error(), "error open image")
	assert.NoFileExists(t, s.CachePath(w))
}

func TestDownloadSource_Resolve_CorruptCacheIsDeleted(t *testing.T) {
	fa := newFakeArchive()
	w := firstWindow()

	s, _ := newDownload(t, fa, true)
	require.NoError(t, os.WriteFile(s.CachePath(w), []byte("corrupt"), 0o644))

	_, err := s.Resolve(context.Background(), w)
	require.Error(t, err)
	assert.Equal(t, domain.KindDecoding, domain.KindOf(err))
	assert.NoFileExists(t, s.CachePath(w))
	assert.Zero(t, fa.fetches)
}

func TestDownloadSource_Cleanup(t *testing.T) {
	fa := newFakeArchive()
	w := firstWindow()
	fa.put(domain.DefaultArchive().RemotePath(w), []byte("tiff"))

	s, _ := newDownload(t, fa, false)
	res, err := s.Resolve(context.Background(), w)
	require.NoError(t, err)

	require.NoError(t, s.Cleanup(res))
	assert.NoFileExists(t, res.Locator)
	// Removing twice is not an error.
	require.NoError(t, s.Cleanup(res))
}

func TestDownloadSource_Cleanup_KeepDownloads(t *testing.T) {
	fa := newFakeArchive()
	w := firstWindow()
	fa.put(domain.DefaultArchive().RemotePath(w), []byte("tiff"))

	s, _ := newDownload(t, fa, true)
	res, err := s.Resolve(context.Background(), w)
	require.NoError(t, err)

	require.NoError(t, s.Cleanup(res))
	assert.FileExists(t, res.Locator)
}

func TestProbe(t *testing.T) {
	fa := newFakeArchive()
	a := domain.DefaultArchive()
	fa.put(a.RemotePath(domain.ProbeWindow(testDay)), []byte("tiff"))

	s, _ := newDownload(t, fa, false)
	require.NoError(t, s.Probe(context.Background(), testDay))

	fa.down = true
	err := s.Probe(context.Background(), testDay)
	require.ErrorIs(t, err, ErrArchiveDown)
	assert.Contains(t, err.Error(), "Host: '"+domain.DefaultHost+"'")
	assert.Contains(t, err.Error(), "20200101-S120000-E122959.0720")
	assert.Contains(t, err.Error(), "xxxxx")
}

func TestStreamSource_Resolve(t *testing.T) {
	a := domain.DefaultArchive()
	w := firstWindow()
	ok := raster.VSICurl(a.URL(w, testEmail).String())

	opener := &fileOpener{remote: map[string]bool{ok: true}}
	m := observability.NewMetricsForTesting()
	s := NewStreamSource(Options{Archive: a, Email: testEmail}, newFakeArchive(), opener, discardLogger(), m)

	res, err := s.Resolve(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, ok, res.Locator)
	assert.False(t, res.Local)
	assert.True(t, strings.HasPrefix(res.Locator, "/vsicurl/ftp://jane.doe%40example.org:jane.doe%40example.org@"))
	require.NoError(t, s.Cleanup(res))

	var next domain.AcquisitionWindow
	i := 0
	for win := range domain.WindowsForDay(testDay) {
		if i == 1 {
			next = win
			break
		}
		i++
	}
	_, err = s.Resolve(context.Background(), next)
	require.Error(t, err)
	assert.Equal(t, domain.KindDecoding, domain.KindOf(err))
	assert.Contains(t, err.Error(), "/vsicurl/")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ImagesResolved.WithLabelValues("stream", "error")))
}
