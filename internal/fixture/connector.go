package fixture

import (
	"context"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/crossbrowser/internal/project"
)

// Connector opens a browser session on the grid.
type Connector interface {
	Connect(ctx context.Context, driver project.Driver, wsEndpoint string) (playwright.Browser, error)
}

// PlaywrightConnector connects through a running Playwright driver.
type PlaywrightConnector struct {
	PW *playwright.Playwright
}

// Connect dials wsEndpoint with the browser type matching driver. Errors are
// returned as Playwright produced them.
func (c PlaywrightConnector) Connect(ctx context.Context, driver project.Driver, wsEndpoint string) (playwright.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.browserType(driver).Connect(wsEndpoint)
}

func (c PlaywrightConnector) browserType(driver project.Driver) playwright.BrowserType {
	switch driver {
	case project.Firefox:
		return c.PW.Firefox
	case project.WebKit:
		return c.PW.WebKit
	default:
		return c.PW.Chromium
	}
}
