package handlers

import (
	"sync"
	"testing"
	"time"

	"github.com/nomis52/scriptdash/catalog"
	"github.com/nomis52/scriptdash/history"
	"github.com/nomis52/scriptdash/server/cron"
	"github.com/nomis52/scriptdash/server/types"
	"github.com/stretchr/testify/require"
)

type mockCatalogProvider struct {
	catalog *catalog.Catalog
}

func (m *mockCatalogProvider) Catalog() *catalog.Catalog {
	return m.catalog
}

type runCall struct {
	name   string
	values map[string]string
}

type mockRunner struct {
	mu        sync.Mutex
	runErr    error
	cancelErr error
	runs      []runCall
	cancels   []string
}

func (m *mockRunner) RunWithValues(name string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, runCall{name: name, values: values})
	return m.runErr
}

func (m *mockRunner) Cancel(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels = append(m.cancels, name)
	return m.cancelErr
}

type mockStatusProvider struct {
	statuses map[string]history.Status
	last     map[string]history.Record
}

func (m *mockStatusProvider) Statuses() map[string]history.Status {
	return m.statuses
}

func (m *mockStatusProvider) LastRun(name string) (history.Record, bool) {
	r, ok := m.last[name]
	return r, ok
}

type mockLiveLogs struct {
	logs map[string][]string
}

func (m *mockLiveLogs) LiveLogs() map[string][]string {
	return m.logs
}

type mockHistoryProvider struct {
	page     history.Page
	err      error
	clearErr error

	gotPage    int
	gotPerPage int
	cleared    int
}

func (m *mockHistoryProvider) History(page, perPage int) (history.Page, error) {
	m.gotPage = page
	m.gotPerPage = perPage
	return m.page, m.err
}

func (m *mockHistoryProvider) ClearHistory() error {
	m.cleared++
	return m.clearErr
}

type mockAPIStatusProvider struct {
	props    types.ServerProperties
	statuses map[string]history.Status
	nextRun  *time.Time
	schedule []cron.ScheduledRun
}

func (m *mockAPIStatusProvider) Properties() types.ServerProperties {
	return m.props
}

func (m *mockAPIStatusProvider) Statuses() map[string]history.Status {
	return m.statuses
}

func (m *mockAPIStatusProvider) NextRun() *time.Time {
	return m.nextRun
}

func (m *mockAPIStatusProvider) Schedule() []cron.ScheduledRun {
	return m.schedule
}

func testCatalog(t *testing.T, scripts map[string]catalog.Script) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(scripts)
	require.NoError(t, err)
	return c
}
