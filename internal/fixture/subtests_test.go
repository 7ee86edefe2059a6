package fixture

import (
	"testing"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/crossbrowser/internal/project"
)

// runEachProject starts one subtest per project the way a suite harness does,
// so run names are resolved from a file other than the declaring test's.
func runEachProject(t *testing.T, a *Adapter, projects []project.Project, local playwright.Page, body func(t *T, page playwright.Page)) {
	t.Helper()
	origin := OriginOf(t, 1)
	for _, p := range projects {
		t.Run(p.Name, func(t *testing.T) {
			a.RunFrom(t, origin, p, local, body)
		})
	}
}
