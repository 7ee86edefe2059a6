package fixture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/crossbrowser/internal/artifacts"
	"github.com/kuitang/crossbrowser/internal/capability"
	"github.com/kuitang/crossbrowser/internal/netprofile"
	"github.com/kuitang/crossbrowser/internal/project"
	"github.com/kuitang/crossbrowser/internal/report"
)

const firefoxProject = "pw-firefox:latest:macOS Sonoma@lambdatest"

var testCreds = capability.Credentials{Username: "alice", AccessKey: "secret-key"}

func remoteInfo(name string) *TestInfo {
	return &TestInfo{
		Title:   "progress bar",
		File:    "/repo/tests/browser/progress_test.go",
		Project: project.Project{Name: name},
	}
}

func decodeDescriptor(t *testing.T, endpoint string) capability.Descriptor {
	t.Helper()
	u, err := url.Parse(endpoint)
	require.NoError(t, err)
	assert.Equal(t, "wss", u.Scheme)
	assert.Equal(t, "cdp.lambdatest.com", u.Host)
	assert.Equal(t, "/playwright", u.Path)

	var d capability.Descriptor
	require.NoError(t, json.Unmarshal([]byte(u.Query().Get("capabilities")), &d))
	return d
}

func TestUse_LocalPassThrough(t *testing.T) {
	t.Parallel()
	j, conn, _, _ := newRemoteRig()
	local := &fakePage{name: "local", j: j}
	a := New(Options{Connector: conn, Credentials: testCreds, LookupEnv: noEnv})

	info := &TestInfo{Title: "t", File: "a_test.go", Project: project.Project{Name: "local-chrome"}}
	s := a.NewSession(info)
	assert.Equal(t, Idle, s.State())

	var got playwright.Page
	err := s.Use(context.Background(), local, func(page playwright.Page) error {
		got = page
		assert.Equal(t, ConnectedLocal, s.State())
		return nil
	})
	require.NoError(t, err)

	assert.Same(t, local, got)
	assert.Equal(t, 0, conn.calls())
	assert.Empty(t, j.list(), "local page must not be touched")
	assert.Equal(t, TornDown, s.State())
	assert.Equal(t, StatusPassed, info.Result.Status)
}

func TestUse_RemoteConnectsAndTearsDownInOrder(t *testing.T) {
	t.Parallel()
	j, conn, browser, page := newRemoteRig()
	a := New(Options{Connector: conn, Credentials: testCreds, LookupEnv: noEnv})

	info := remoteInfo(firefoxProject)
	info.Project.Use = playwright.BrowserNewPageOptions{BaseURL: playwright.String("https://example.test")}
	s := a.NewSession(info)

	err := s.Use(context.Background(), nil, func(got playwright.Page) error {
		assert.Same(t, page, got)
		assert.Equal(t, ConnectedRemote, s.State())
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"connect", "browser.newpage", "page.evaluate", "page.close", "browser.close"}, j.list())
	assert.Equal(t, TornDown, s.State())
	require.Len(t, conn.drivers, 1)
	assert.Equal(t, project.Firefox, conn.drivers[0])
	require.Len(t, browser.pageOpts, 1)
	assert.Equal(t, "https://example.test", *browser.pageOpts[0].BaseURL)

	d := decodeDescriptor(t, conn.endpoints[0])
	assert.Equal(t, "pw-firefox", d.BrowserName)
	assert.Equal(t, "latest", d.BrowserVersion)
	assert.Equal(t, "macOS Sonoma", d.Options.Platform)
	assert.Equal(t, "progress bar - progress_test.go", d.Options.Name)
	assert.Empty(t, d.Options.NetworkThrottling)
	assert.Equal(t, "alice", d.Options.User)

	r, err := ParseDirective(page.lastDirective())
	require.NoError(t, err)
	assert.Equal(t, ActionSetTestStatus, r.Action)
	assert.Equal(t, StatusPassed, r.Arguments.Status)
	assert.Nil(t, r.Arguments.Remark)
}

func TestUse_DegradedProfileFromEnv(t *testing.T) {
	t.Parallel()
	_, conn, _, _ := newRemoteRig()
	a := New(Options{
		Connector:   conn,
		Credentials: testCreds,
		LookupEnv:   envOf(map[string]string{netprofile.EnvVar: " Slow-3G "}),
	})

	require.NoError(t, a.Use(context.Background(), remoteInfo("chrome:::lambdatest"), nil, func(playwright.Page) error { return nil }))

	d := decodeDescriptor(t, conn.endpoints[0])
	assert.Equal(t, "chrome", d.BrowserName)
	assert.Equal(t, "latest", d.BrowserVersion)
	assert.Equal(t, "Windows 11", d.Options.Platform)
	assert.Equal(t, "Regular 2G", d.Options.NetworkThrottling)
	assert.Equal(t, project.Chromium, conn.drivers[0])
}

func TestUse_PageCloseFailureStillClosesBrowser(t *testing.T) {
	t.Parallel()
	j, conn, browser, page := newRemoteRig()
	page.closeErr = errors.New("target closed")
	browser.closeErr = errors.New("already gone")
	a := New(Options{Connector: conn, Credentials: testCreds, LookupEnv: noEnv})

	err := a.Use(context.Background(), remoteInfo(firefoxProject), nil, func(playwright.Page) error { return nil })
	require.NoError(t, err, "teardown failures are never escalated")

	events := j.list()
	assert.Equal(t, []string{"page.close", "browser.close"}, events[len(events)-2:])
}

func TestUse_ConnectErrorSurfacesUnmodified(t *testing.T) {
	t.Parallel()
	j, conn, _, _ := newRemoteRig()
	connectErr := errors.New("websocket: bad handshake")
	conn.err = connectErr
	a := New(Options{Connector: conn, Credentials: testCreds, LookupEnv: noEnv})

	info := remoteInfo(firefoxProject)
	s := a.NewSession(info)
	ran := false
	err := s.Use(context.Background(), nil, func(playwright.Page) error {
		ran = true
		return nil
	})

	require.Error(t, err)
	assert.True(t, err == connectErr, "connect error must be returned as-is, got %v", err)
	assert.False(t, ran)
	assert.Equal(t, []string{"connect"}, j.list(), "no close attempted without a session")
	assert.Equal(t, TornDown, s.State())
	assert.Equal(t, StatusFailed, info.Result.Status)
}

func TestUse_NewPageErrorClosesBrowser(t *testing.T) {
	t.Parallel()
	j, conn, browser, _ := newRemoteRig()
	pageErr := errors.New("new page failed")
	browser.newPageErr = pageErr
	a := New(Options{Connector: conn, Credentials: testCreds, LookupEnv: noEnv})

	err := a.Use(context.Background(), remoteInfo(firefoxProject), nil, func(playwright.Page) error { return nil })
	assert.True(t, err == pageErr)
	assert.Equal(t, []string{"connect", "browser.newpage", "browser.close"}, j.list())
}

func TestUse_BodyFailureReportedWithRemark(t *testing.T) {
	t.Parallel()
	_, conn, _, page := newRemoteRig()
	a := New(Options{Connector: conn, Credentials: testCreds, LookupEnv: noEnv})

	bodyErr := errors.New(`expected "100%" got "40%"`)
	info := remoteInfo(firefoxProject)
	err := a.Use(context.Background(), info, nil, func(playwright.Page) error { return bodyErr })
	assert.True(t, err == bodyErr)

	r, perr := ParseDirective(page.lastDirective())
	require.NoError(t, perr)
	assert.Equal(t, StatusFailed, r.Arguments.Status)
	require.NotNil(t, r.Arguments.Remark)
	assert.Equal(t, bodyErr.Error(), *r.Arguments.Remark)
}

func TestUse_StatusReportFailureIsolated(t *testing.T) {
	t.Parallel()
	j, conn, _, page := newRemoteRig()
	page.evaluateErr = errors.New("execution context destroyed")
	a := New(Options{Connector: conn, Credentials: testCreds, LookupEnv: noEnv})

	require.NoError(t, a.Use(context.Background(), remoteInfo(firefoxProject), nil, func(playwright.Page) error { return nil }))
	events := j.list()
	assert.Equal(t, []string{"page.evaluate", "page.close", "browser.close"}, events[len(events)-3:])
}

func TestUse_PanicReraisedAfterTeardown(t *testing.T) {
	t.Parallel()
	j, conn, _, page := newRemoteRig()
	a := New(Options{Connector: conn, Credentials: testCreds, LookupEnv: noEnv})
	info := remoteInfo(firefoxProject)

	assert.PanicsWithValue(t, "boom", func() {
		_ = a.Use(context.Background(), info, nil, func(playwright.Page) error { panic("boom") })
	})

	events := j.list()
	assert.Equal(t, []string{"page.evaluate", "page.close", "browser.close"}, events[len(events)-3:])
	r, err := ParseDirective(page.lastDirective())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, r.Arguments.Status)
	require.NotNil(t, r.Arguments.Remark)
	assert.Equal(t, "boom", *r.Arguments.Remark)
}

func TestUse_MissingConnector(t *testing.T) {
	t.Parallel()
	a := New(Options{Credentials: testCreds, LookupEnv: noEnv})
	err := a.Use(context.Background(), remoteInfo(firefoxProject), nil, func(playwright.Page) error { return nil })
	require.Error(t, err)
}

func TestUse_ConcurrentSessionsKeepOwnNames(t *testing.T) {
	t.Parallel()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, conn, _, _ := newRemoteRig()
			a := New(Options{Connector: conn, Credentials: testCreds, LookupEnv: noEnv})
			info := remoteInfo(firefoxProject)
			info.Title = fmt.Sprintf("case-%d", i)
			assert.NoError(t, a.Use(context.Background(), info, nil, func(playwright.Page) error { return nil }))

			d := decodeDescriptor(t, conn.endpoints[0])
			assert.Equal(t, fmt.Sprintf("case-%d - progress_test.go", i), d.Options.Name)
		}(i)
	}
	wg.Wait()
}

func TestUse_RecordsAndCapturesFailure(t *testing.T) {
	t.Parallel()
	j, conn, _, _ := newRemoteRig()
	rec := report.NewRecorder()
	store := artifacts.TestClient(t, "shots")
	a := New(Options{
		Connector:   conn,
		Credentials: testCreds,
		LookupEnv:   noEnv,
		Recorder:    rec,
		Artifacts:   store,
		RunID:       "run-7",
	})

	err := a.Use(context.Background(), remoteInfo(firefoxProject), nil, func(playwright.Page) error {
		return errors.New("hover text missing")
	})
	require.Error(t, err)

	assert.Contains(t, j.list(), "page.screenshot")
	key := screenshotKey("run-7", firefoxProject, "progress bar - progress_test.go")
	shot, gerr := store.GetObject(context.Background(), key)
	require.NoError(t, gerr)
	assert.Equal(t, "png", string(shot))

	entries := rec.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "failed", entries[0].Status)
	assert.Equal(t, "remote", entries[0].Mode)
	assert.Equal(t, "hover text missing", entries[0].Remark)
}

func TestScreenshotKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		"runs/r1/screenshots/pw-firefox-latest-macOS-Sonoma-lambdatest/a-b.go.png",
		screenshotKey("r1", firefoxProject, "a / b.go"),
	)
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "torn-down", TornDown.String())
	assert.Equal(t, "state(9)", State(9).String())
}
