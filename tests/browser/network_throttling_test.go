//go:build playground

package browser

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/crossbrowser/internal/fixture"
	"github.com/kuitang/crossbrowser/internal/netprofile"
)

// routeDelay is the per-request latency the 2G cases add on top of whatever
// profile the grid applies.
const routeDelay = 2 * time.Second

func firstProductImage(t *fixture.T, page playwright.Page, timeout time.Duration) {
	t.Helper()
	image := page.Locator(".product-thumb img").First()
	require.NoError(t, expect.Locator(image).ToBeVisible(
		playwright.LocatorAssertionsToBeVisibleOptions{Timeout: Timeout(timeout)}))
	require.NoError(t, expect.Locator(image).ToHaveAttribute("src", regexp.MustCompile(`.+`)))
}

func TestNetwork_StandardLoadsQuickly(t *testing.T) {
	Setup(t).RunProjects(t, func(t *fixture.T, page playwright.Page) {
		start := time.Now()
		_, err := page.Goto(ecommerceURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   Timeout(30 * time.Second),
		})
		require.NoError(t, err)

		firstProductImage(t, page, 8*time.Second)
		elapsed := time.Since(start)
		t.Logf("loaded in %s under standard conditions", elapsed.Round(time.Millisecond))
		assert.Less(t, elapsed, 10*time.Second)
	})
}

func TestNetwork_SlowNetworkShortTimeoutFails(t *testing.T) {
	Setup(t).RunProjects(t, func(t *fixture.T, page playwright.Page) {
		require.NoError(t, netprofile.EmulateLatency(context.Background(), page, routeDelay))

		_, err := page.Goto(ecommerceURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   Timeout(2 * time.Second),
		})
		require.Error(t, err)
		require.True(t, IsTimeout(err), "expected a timeout, got %v", err)
	})
}

func TestNetwork_SlowNetworkAdjustedTimeout(t *testing.T) {
	Setup(t).RunProjects(t, func(t *fixture.T, page playwright.Page) {
		require.NoError(t, netprofile.EmulateLatency(context.Background(), page, routeDelay))

		start := time.Now()
		_, err := page.Goto(ecommerceURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   Timeout(60 * time.Second),
		})
		require.NoError(t, err)

		firstProductImage(t, page, 30*time.Second)
		elapsed := time.Since(start)
		t.Logf("loaded in %s under 2G simulation", elapsed.Round(time.Millisecond))
		assert.Greater(t, elapsed, routeDelay)
		assert.Less(t, elapsed, 60*time.Second)
	})
}

// Local projects have no grid throttling, so the configured profile is
// emulated in the page itself.
func TestNetwork_ConfiguredProfileEmulated(t *testing.T) {
	s := Setup(t)
	if s.Config.Network != netprofile.Degraded {
		t.Skip("NETWORK_TYPE does not select the degraded profile")
	}
	s.RunProjects(t, func(t *fixture.T, page playwright.Page) {
		if !t.Info().Project.Remote() {
			require.NoError(t, netprofile.Emulate(context.Background(), page, s.Config.Network))
		}

		start := time.Now()
		_, err := page.Goto(ecommerceURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   Timeout(60 * time.Second),
		})
		require.NoError(t, err)
		firstProductImage(t, page, 30*time.Second)
		t.Logf("loaded in %s under %s", time.Since(start).Round(time.Millisecond), s.Config.Network)
	})
}
