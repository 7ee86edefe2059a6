// Package browser runs the playground suites against every configured
// project. Local projects use a shared locally launched Chromium; remote
// projects get their own grid session per test through the fixture adapter.
//
// The suites need network access to the public playground sites and, for
// remote projects, grid credentials. They are built only with the
// "playground" tag:
//
//	PROJECTS=local-chrome go test -tags playground ./tests/browser/...
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/crossbrowser/internal/artifacts"
	"github.com/kuitang/crossbrowser/internal/config"
	"github.com/kuitang/crossbrowser/internal/fixture"
	"github.com/kuitang/crossbrowser/internal/obs"
	"github.com/kuitang/crossbrowser/internal/project"
	"github.com/kuitang/crossbrowser/internal/report"
	"github.com/kuitang/crossbrowser/internal/urlutil"
)

const (
	// NavigationTimeoutMS bounds page.Goto in every suite.
	NavigationTimeoutMS = 60000

	reportTitle = "Cross-browser playground run"
)

var (
	suiteMu     sync.Mutex
	sharedSuite *Suite
)

// Suite is the process-wide test environment shared by all suites.
type Suite struct {
	Config   *config.Config
	Projects []project.Project
	Adapter  *fixture.Adapter
	Recorder *report.Recorder

	store artifacts.Store

	pw        *playwright.Playwright
	local     playwright.Browser
	browserMu sync.Mutex
	initErr   error
}

// Start loads configuration and starts Playwright. Call it from TestMain
// before m.Run. Missing grid credentials end the process here, before any
// test runs.
func Start() {
	obs.Init()
	cfg := config.MustLoadConfig(config.Flags{})
	cfg.PrintStartupSummary(os.Stdout)

	suiteMu.Lock()
	defer suiteMu.Unlock()
	sharedSuite = newSuite(context.Background(), cfg)
}

func newSuite(ctx context.Context, cfg *config.Config) *Suite {
	s := &Suite{Config: cfg, Recorder: report.NewRecorder()}
	log := obs.Pkg("browser")

	pw, err := playwright.Run()
	if err != nil {
		s.initErr = fmt.Errorf("playwright not available: %w", err)
		return s
	}
	s.pw = pw
	s.Projects = project.FromNames(cfg.Projects, cfg.BaseURL, pw.Devices)

	if cfg.ArtifactsEnabled() {
		store, err := artifacts.New(ctx, cfg.ArtifactConfig())
		if err != nil {
			log.Warn("artifact store disabled", "error", err)
		} else {
			s.store = store
		}
	}

	s.Adapter = fixture.New(fixture.Options{
		GridHost:    cfg.GridHost,
		GridPath:    cfg.GridPath,
		Credentials: cfg.Credentials(),
		Connector:   fixture.PlaywrightConnector{PW: pw},
		Recorder:    s.Recorder,
		Artifacts:   s.store,
	})
	return s
}

// Stop writes the run report and shuts Playwright down. Call it from TestMain
// after m.Run.
func Stop() {
	suiteMu.Lock()
	defer suiteMu.Unlock()
	if sharedSuite == nil {
		return
	}
	sharedSuite.finish(context.Background())
	sharedSuite = nil
}

func (s *Suite) finish(ctx context.Context) {
	log := obs.Pkg("browser")
	if dir := s.Config.ReportDir; dir != "" {
		if err := s.Recorder.WriteFiles(dir, reportTitle); err != nil {
			log.Warn("report not written", "dir", dir, "error", err)
		}
	}
	if s.store != nil {
		url, err := s.Recorder.Upload(ctx, s.store, obs.RunID(), reportTitle)
		if err != nil {
			log.Warn("report upload failed", "error", err)
		} else {
			fmt.Println("Report:", url)
		}
	}
	if s.local != nil {
		_ = s.local.Close()
	}
	if s.pw != nil {
		_ = s.pw.Stop()
	}
}

// Setup returns the shared suite, skipping t when Playwright is unavailable.
func Setup(t *testing.T) *Suite {
	t.Helper()

	suiteMu.Lock()
	s := sharedSuite
	suiteMu.Unlock()

	if testing.Short() {
		t.Skip("playground suites reach third-party sites; skipped in -short mode")
	}
	if s == nil {
		t.Skip("suite not started; TestMain must call Start")
	}
	if s.initErr != nil {
		t.Skip(s.initErr.Error())
	}
	return s
}

// URL resolves a playground path against the configured base URL.
func (s *Suite) URL(path string) string {
	return urlutil.Join(s.Config.BaseURL, path)
}

// localBrowser launches the shared local Chromium on first use.
func (s *Suite) localBrowser(t *testing.T) playwright.Browser {
	t.Helper()

	s.browserMu.Lock()
	defer s.browserMu.Unlock()

	if s.local != nil {
		return s.local
	}
	browser, err := s.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		t.Skip("Could not launch browser:", err)
	}
	s.local = browser
	return browser
}

// RunProjects runs body once per configured project as a subtest named after
// the project. Subtests run in parallel unless the run is limited to one
// worker. Grid run names carry t's name and the calling suite file. A body
// still running after the configured test timeout is failed and its page
// closed.
func (s *Suite) RunProjects(t *testing.T, body func(t *fixture.T, page playwright.Page)) {
	t.Helper()
	origin := fixture.OriginOf(t, 1)

	for _, p := range s.Projects {
		t.Run(p.Name, func(t *testing.T) {
			if s.Config.Workers != 1 {
				t.Parallel()
			}

			var local playwright.Page
			if !p.Remote() {
				page, err := s.localBrowser(t).NewPage(p.Use)
				if err != nil {
					t.Fatalf("could not create page: %v", err)
				}
				defer page.Close()
				local = page
			}

			s.Adapter.RunFrom(t, origin, p, local, func(ft *fixture.T, page playwright.Page) {
				page.SetDefaultNavigationTimeout(NavigationTimeoutMS)
				withDeadline(ft, page, s.Config.TestTimeout, func() { body(ft, page) })
			})
		})
	}
}

// withDeadline runs body and fails t when body outlives limit. On expiry the
// page is closed so pending Playwright calls return; the failure itself is
// reported from t's goroutine once body has returned or exited.
func withDeadline(t testing.TB, page playwright.Page, limit time.Duration, body func()) {
	var expired atomic.Bool
	watchdog := time.AfterFunc(limit, func() {
		expired.Store(true)
		_ = page.Close()
	})
	defer func() {
		watchdog.Stop()
		if expired.Load() {
			t.Errorf("test timeout of %s exceeded", limit)
		}
	}()
	body()
}

// Navigate opens url and waits for DOMContentLoaded.
func Navigate(t testing.TB, page playwright.Page, url string) {
	t.Helper()

	_, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(NavigationTimeoutMS),
	})
	if err != nil {
		t.Fatalf("Failed to navigate to %s: %v", url, err)
	}
}

// WaitForSelector waits for the first match of selector to be visible and
// returns its locator.
func WaitForSelector(t testing.TB, page playwright.Page, selector string, timeout time.Duration) playwright.Locator {
	t.Helper()

	first := page.Locator(selector).First()
	err := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		title, _ := page.Title()
		content, _ := page.Content()
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		t.Logf("Current URL: %s", page.URL())
		t.Logf("Current title: %s", title)
		t.Logf("Content preview: %s", content)
		t.Fatalf("Failed to wait for selector %s: %v", selector, err)
	}
	return first
}

// Timeout converts d to the milliseconds Playwright options expect.
func Timeout(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

// IsTimeout reports whether err is a Playwright timeout. Assertion failures
// carry the timeout only in their message.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Timeout") || strings.Contains(msg, "Timed out")
}

// Retry calls fn up to attempts times until it succeeds, calling between
// after each failed attempt but the last. The last error is returned, wrapped
// with the attempt count.
func Retry(attempts int, fn func(attempt int) error, between func()) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt < attempts && between != nil {
			between()
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, err)
}
