// Package fixture supplies each test with a page, either the locally launched
// one or a fresh session on the remote grid, and guarantees the remote
// session is reported and torn down.
package fixture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/crossbrowser/internal/artifacts"
	"github.com/kuitang/crossbrowser/internal/capability"
	"github.com/kuitang/crossbrowser/internal/errs"
	"github.com/kuitang/crossbrowser/internal/logutil"
	"github.com/kuitang/crossbrowser/internal/netprofile"
	"github.com/kuitang/crossbrowser/internal/obs"
	"github.com/kuitang/crossbrowser/internal/project"
	"github.com/kuitang/crossbrowser/internal/report"
)

// State is a session's position in its lifecycle.
type State int

const (
	Idle State = iota
	Resolving
	ConnectedLocal
	ConnectedRemote
	TornDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Resolving:
		return "resolving"
	case ConnectedLocal:
		return "connected-local"
	case ConnectedRemote:
		return "connected-remote"
	case TornDown:
		return "torn-down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures an Adapter. Only Connector is needed for remote projects.
type Options struct {
	GridHost    string
	GridPath    string
	Credentials capability.Credentials
	Connector   Connector

	// LookupEnv resolves the network profile override. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// Recorder, when set, receives one entry per finished test.
	Recorder *report.Recorder
	// Artifacts, when set, receives a screenshot of every failed test.
	Artifacts artifacts.Store
	RunID     string
}

// Adapter hands pages to test bodies. It holds no per-test state and is safe
// for concurrent use.
type Adapter struct {
	opts Options
}

// New returns an Adapter for opts.
func New(opts Options) *Adapter {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	if opts.RunID == "" {
		opts.RunID = obs.RunID()
	}
	return &Adapter{opts: opts}
}

// Use runs body with the page for info's project. See Session.Use.
func (a *Adapter) Use(ctx context.Context, info *TestInfo, local playwright.Page, body func(playwright.Page) error) error {
	return a.NewSession(info).Use(ctx, local, body)
}

// Session is one test's use of the adapter.
type Session struct {
	adapter *Adapter
	info    *TestInfo

	mu    sync.Mutex
	state State

	browser playwright.Browser
	page    playwright.Page
}

// NewSession returns an idle session for info.
func (a *Adapter) NewSession(info *TestInfo) *Session {
	return &Session{adapter: a, info: info}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Use runs body with a page and always ends in TornDown.
//
// Local projects get local unchanged and nothing is closed. Remote projects
// get a page on a new grid session built from the project name. Errors from
// connecting, opening the page or body are returned unchanged, and a panic in
// body is re-raised, in both cases after the status report and teardown. The
// status report and both closes are best-effort and only logged.
func (s *Session) Use(ctx context.Context, local playwright.Page, body func(playwright.Page) error) (err error) {
	start := time.Now()
	info := s.info
	remote := info.Project.Remote()

	mode := "local"
	if remote {
		mode = "remote"
	}
	ctx = obs.WithCorrelation(ctx, obs.Correlation{
		RunID:   s.adapter.opts.RunID,
		Project: info.Project.Name,
		Test:    info.DisplayName(),
		Mode:    mode,
	})
	s.setState(Resolving)

	completed := false
	defer func() {
		p := recover()
		if p != nil {
			obs.From(ctx).Error("test body panicked", "panic", fmt.Sprint(p))
		}
		s.info.settle(err, p, completed)
		s.finish(ctx, mode, time.Since(start))
		if p != nil {
			panic(p)
		}
	}()

	page := local
	if remote {
		ctx, page, err = s.open(ctx)
		if err != nil {
			obs.From(ctx).Error("remote session setup failed", "error", err)
			return err
		}
	} else {
		s.page = local
		s.setState(ConnectedLocal)
	}

	err = body(page)
	completed = true
	if err != nil {
		obs.From(ctx).Info("test body failed", "error", logutil.TruncateForLog(err.Error(), 500))
	}
	return err
}

// open connects to the grid and creates the test's page.
func (s *Session) open(ctx context.Context) (context.Context, playwright.Page, error) {
	opts := s.adapter.opts
	info := s.info

	profile := netprofile.FromEnv(opts.LookupEnv)
	desc := capability.Build(opts.Credentials, info.Project.Name, profile, info.DisplayName())
	driver := project.DriverFor(info.Project.Identifier().Family)
	ctx = obs.WithCorrelation(ctx, obs.Correlation{Driver: driver.String()})
	log := obs.From(ctx)

	endpoint, err := capability.Endpoint(opts.GridHost, opts.GridPath, desc)
	if err != nil {
		return ctx, nil, err
	}
	if opts.Connector == nil {
		return ctx, nil, errs.New(errs.Config, "fixture: no connector configured for remote project "+info.Project.Name)
	}

	log.Info("connecting to grid",
		"endpoint", logutil.RedactEndpoint(endpoint),
		"browser", desc.BrowserName,
		"version", desc.BrowserVersion,
		"platform", desc.Options.Platform,
		"network", string(profile),
	)
	browser, err := opts.Connector.Connect(ctx, driver, endpoint)
	if err != nil {
		return ctx, nil, err
	}
	s.browser = browser
	log.Debug("connected")

	page, err := browser.NewPage(info.Project.Use)
	if err != nil {
		return ctx, nil, err
	}
	s.page = page
	s.setState(ConnectedRemote)
	log.Debug("page created")
	return ctx, page, nil
}

// finish reports the status, captures a failure screenshot, tears down, and
// records the outcome. Each step is independent of the others' failures.
func (s *Session) finish(ctx context.Context, mode string, elapsed time.Duration) {
	log := obs.From(ctx)
	remote := mode == "remote"

	if remote && s.page != nil {
		s.reportStatus(log)
	}
	res := s.info.Outcome()
	if res.Status == StatusFailed && s.page != nil {
		s.captureFailure(ctx, log)
	}
	if remote {
		s.teardown(log)
	}
	s.setState(TornDown)

	if rec := s.adapter.opts.Recorder; rec != nil {
		var remark string
		if res.Error != nil {
			remark = res.Error.Message
		}
		rec.Record(report.Entry{
			Project:  s.info.Project.Name,
			Test:     s.info.DisplayName(),
			Mode:     mode,
			Status:   string(res.Status),
			Remark:   remark,
			Duration: elapsed,
		})
	}
	log.Info("test finished", "status", string(res.Status), "duration_ms", elapsed.Milliseconds())
}

func (s *Session) reportStatus(log *slog.Logger) {
	status := NewStatusReport(s.info)
	directive, err := Directive(status)
	if err != nil {
		log.Warn("status report not sent", "error", err)
		return
	}
	if _, err := s.page.Evaluate("() => {}", directive); err != nil {
		log.Warn("status report failed", "error", err)
		return
	}
	log.Debug("status reported", "status", string(status.Arguments.Status))
}

// teardown closes the page, then the browser. Neither failure stops the other.
func (s *Session) teardown(log *slog.Logger) {
	if s.page != nil {
		if err := s.page.Close(); err != nil {
			log.Warn("page close failed", "error", err)
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			log.Warn("browser close failed", "error", err)
		}
	}
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func screenshotKey(runID, projectName, test string) string {
	clean := func(s string) string {
		return strings.Trim(unsafeKeyChars.ReplaceAllString(s, "-"), "-")
	}
	return artifacts.RunKey(runID, "screenshots/"+clean(projectName)+"/"+clean(test)+".png")
}

func (s *Session) captureFailure(ctx context.Context, log *slog.Logger) {
	store := s.adapter.opts.Artifacts
	if store == nil {
		return
	}
	shot, err := s.page.Screenshot()
	if err != nil {
		log.Warn("failure screenshot failed", "error", err)
		return
	}
	key := screenshotKey(s.adapter.opts.RunID, s.info.Project.Name, s.info.DisplayName())
	if err := store.PutObject(ctx, key, shot, "image/png"); err != nil {
		log.Warn("failure screenshot upload failed", "key", key, "error", err)
		return
	}
	log.Info("failure screenshot stored", "url", store.PublicURL(key))
}
