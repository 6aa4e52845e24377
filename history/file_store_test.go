package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T, opts ...FileStoreOption) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store, err := NewFileStore(filepath.Join(dir, "script_run_history.json"), dir, logger, opts...)
	require.NoError(t, err)
	return store, dir
}

func testRecord(script string, start time.Time, status Status) Record {
	start = StartTime(start)
	r := Record{
		Script:  script,
		Start:   start,
		Status:  StatusRunning,
		LogFile: LogFileName(script, start),
	}
	r.Finish(start.Add(1500*time.Millisecond), status)
	return r
}

func TestFileStore_AppendAndPage(t *testing.T) {
	store, _ := newTestFileStore(t)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	// Save out of chronological order.
	offsets := []int{2, 0, 4, 1, 3}
	for _, o := range offsets {
		rec := testRecord(fmt.Sprintf("script%d", o), base.Add(time.Duration(o)*time.Hour), StatusSuccess)
		require.NoError(t, store.Append(rec))
	}

	page, err := store.Page(1, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 1, page.Pages)
	require.Len(t, page.Records, 5)

	for i, rec := range page.Records {
		assert.Equal(t, fmt.Sprintf("script%d", 4-i), rec.Script)
		assert.Equal(t, StatusSuccess, rec.Status)
		require.NotNil(t, rec.End)
		assert.InDelta(t, 1.5, rec.Duration, 0.001)
	}
}

func TestFileStore_Pagination(t *testing.T) {
	store, _ := newTestFileStore(t)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		require.NoError(t, store.Append(testRecord("s", base.Add(time.Duration(i)*time.Minute), StatusSuccess)))
	}

	tests := []struct {
		name      string
		page      int
		perPage   int
		wantLen   int
		wantPages int
	}{
		{name: "first page", page: 1, perPage: 10, wantLen: 10, wantPages: 3},
		{name: "last partial page", page: 3, perPage: 10, wantLen: 5, wantPages: 3},
		{name: "out of range", page: 4, perPage: 10, wantLen: 0, wantPages: 3},
		{name: "zero page", page: 0, perPage: 10, wantLen: 0, wantPages: 3},
		{name: "negative page", page: -1, perPage: 10, wantLen: 0, wantPages: 3},
		{name: "default per page", page: 1, perPage: 0, wantLen: DefaultPerPage, wantPages: 3},
		{name: "capped per page", page: 1, perPage: 1000, wantLen: 25, wantPages: 1},
		{name: "huge page", page: 1 << 62, perPage: 4, wantLen: 0, wantPages: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := store.Page(tt.page, tt.perPage)
			require.NoError(t, err)
			assert.Len(t, page.Records, tt.wantLen)
			assert.Equal(t, tt.wantPages, page.Pages)
			assert.Equal(t, 25, page.Total)
			assert.NotNil(t, page.Records)
		})
	}

	page, err := store.Page(3, 10)
	require.NoError(t, err)
	assert.True(t, page.Records[0].Start.Equal(StartTime(base.Add(4*time.Minute))))
}

func TestFileStore_EmptyHistory(t *testing.T) {
	store, _ := newTestFileStore(t)

	page, err := store.Page(1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Equal(t, 0, page.Pages)
	assert.Empty(t, page.Records)
}

func TestFileStore_CorruptFileAppend(t *testing.T) {
	store, _ := newTestFileStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0644))

	rec := testRecord("echo_test", time.Now(), StatusSuccess)
	require.NoError(t, store.Append(rec))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	var records []Record
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "echo_test", records[0].Script)
}

func TestFileStore_CorruptFilePage(t *testing.T) {
	store, _ := newTestFileStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("[{"), 0644))

	_, err := store.Page(1, 10)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileStore_JSONLayout(t *testing.T) {
	store, _ := newTestFileStore(t)
	rec := testRecord("report_open_prs", time.Date(2025, 6, 1, 10, 4, 5, 0, time.UTC), StatusError)
	require.NoError(t, store.Append(rec))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 1)
	assert.Equal(t, "report_open_prs", raw[0]["script"])
	assert.Equal(t, "2025-06-01T10:04:05Z", raw[0]["start"])
	assert.Equal(t, "2025-06-01T10:04:06.5Z", raw[0]["end"])
	assert.Equal(t, 1.5, raw[0]["duration"])
	assert.Equal(t, "error", raw[0]["status"])
	assert.Equal(t, "report_open_prs_2025-06-01T10-04-05.000Z.log", raw[0]["log_file"])
}

func TestFileStore_ConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	path := filepath.Join(dir, "history.json")

	// Separate store instances share only the file, like separate processes.
	const writers = 20
	var wg sync.WaitGroup
	base := time.Now()
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store, err := NewFileStore(path, dir, logger)
			if !assert.NoError(t, err) {
				return
			}
			rec := testRecord(fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Second), StatusSuccess)
			assert.NoError(t, store.Append(rec))
		}(i)
	}
	wg.Wait()

	store, err := NewFileStore(path, dir, logger)
	require.NoError(t, err)
	records, err := store.Records()
	require.NoError(t, err)
	assert.Len(t, records, writers)
}

func TestFileStore_Clear(t *testing.T) {
	store, dir := newTestFileStore(t)

	var logs []string
	for i := 0; i < 3; i++ {
		rec := testRecord("s", time.Now().Add(time.Duration(i)*time.Second), StatusSuccess)
		path := filepath.Join(dir, rec.LogFile)
		require.NoError(t, os.WriteFile(path, []byte("line1"), 0644))
		logs = append(logs, path)
		require.NoError(t, store.Append(rec))
	}
	// A record whose log file is already gone must not fail the clear.
	require.NoError(t, store.Append(Record{Script: "gone", Start: StartTime(time.Now()), LogFile: "gone.log"}))
	// Records never reach outside the log directory.
	outside := filepath.Join(t.TempDir(), "keep.log")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0644))
	require.NoError(t, store.Append(Record{Script: "evil", Start: StartTime(time.Now()), LogFile: outside}))

	require.NoError(t, store.Clear())

	for _, p := range logs {
		assert.NoFileExists(t, p)
	}
	assert.FileExists(t, outside)

	page, err := store.Page(1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestFileStore_MaxRecords(t *testing.T) {
	store, dir := newTestFileStore(t, WithMaxRecords(3))

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	var recs []Record
	for i := 0; i < 5; i++ {
		rec := testRecord("s", base.Add(time.Duration(i)*time.Minute), StatusSuccess)
		require.NoError(t, os.WriteFile(filepath.Join(dir, rec.LogFile), []byte("x"), 0644))
		require.NoError(t, store.Append(rec))
		recs = append(recs, rec)
	}

	records, err := store.Records()
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.True(t, rec.Start.Equal(recs[i+2].Start))
	}

	assert.NoFileExists(t, filepath.Join(dir, recs[0].LogFile))
	assert.NoFileExists(t, filepath.Join(dir, recs[1].LogFile))
	assert.FileExists(t, filepath.Join(dir, recs[4].LogFile))
}

func TestFileStore_NoTempFilesLeft(t *testing.T) {
	store, dir := newTestFileStore(t)
	require.NoError(t, store.Append(testRecord("s", time.Now(), StatusSuccess)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".script_run_history.json.")
	}
}
