package fixture

import (
	"context"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/crossbrowser/internal/project"
)

// journal records calls across fakes so tests can assert ordering.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(event string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

type fakePage struct {
	playwright.Page
	name string
	j    *journal

	closeErr    error
	evaluateErr error
	shot        []byte

	mu         sync.Mutex
	directives []string
}

func (p *fakePage) Evaluate(expression string, arg ...interface{}) (interface{}, error) {
	p.j.add(p.name + ".evaluate")
	p.mu.Lock()
	for _, a := range arg {
		if s, ok := a.(string); ok {
			p.directives = append(p.directives, s)
		}
	}
	p.mu.Unlock()
	return nil, p.evaluateErr
}

func (p *fakePage) Close(options ...playwright.PageCloseOptions) error {
	p.j.add(p.name + ".close")
	return p.closeErr
}

func (p *fakePage) Screenshot(options ...playwright.PageScreenshotOptions) ([]byte, error) {
	p.j.add(p.name + ".screenshot")
	return p.shot, nil
}

func (p *fakePage) lastDirective() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.directives) == 0 {
		return ""
	}
	return p.directives[len(p.directives)-1]
}

type fakeBrowser struct {
	playwright.Browser
	j *journal

	page       *fakePage
	newPageErr error
	closeErr   error
	pageOpts   []playwright.BrowserNewPageOptions
}

func (b *fakeBrowser) NewPage(options ...playwright.BrowserNewPageOptions) (playwright.Page, error) {
	b.j.add("browser.newpage")
	b.pageOpts = append(b.pageOpts, options...)
	if b.newPageErr != nil {
		return nil, b.newPageErr
	}
	return b.page, nil
}

func (b *fakeBrowser) Close(options ...playwright.BrowserCloseOptions) error {
	b.j.add("browser.close")
	return b.closeErr
}

type fakeConnector struct {
	j *journal

	browser *fakeBrowser
	err     error

	mu        sync.Mutex
	drivers   []project.Driver
	endpoints []string
}

func (c *fakeConnector) Connect(ctx context.Context, driver project.Driver, wsEndpoint string) (playwright.Browser, error) {
	c.j.add("connect")
	c.mu.Lock()
	c.drivers = append(c.drivers, driver)
	c.endpoints = append(c.endpoints, wsEndpoint)
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.browser, nil
}

func (c *fakeConnector) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.endpoints)
}

// newRemoteRig wires a connector that hands out one browser with one page.
func newRemoteRig() (*journal, *fakeConnector, *fakeBrowser, *fakePage) {
	j := &journal{}
	page := &fakePage{name: "page", j: j, shot: []byte("png")}
	browser := &fakeBrowser{j: j, page: page}
	conn := &fakeConnector{j: j, browser: browser}
	return j, conn, browser, page
}

func noEnv(string) (string, bool) { return "", false }

func envOf(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}
