package netprofile

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/time/rate"

	"github.com/kuitang/crossbrowser/internal/obs"
)

// shaperChunk bounds a single limiter reservation so bodies larger than the
// burst are paced in pieces.
const shaperChunk = 16 * 1024

// shaper applies a fixed per-request latency and an aggregate download
// budget shared by every request of one page.
type shaper struct {
	latency time.Duration
	down    *rate.Limiter
}

func newShaper(c Conditions) *shaper {
	s := &shaper{
		latency: time.Duration(c.LatencyMS * float64(time.Millisecond)),
	}
	if c.Download > 0 {
		s.down = rate.NewLimiter(rate.Limit(c.Download), shaperChunk)
	}
	return s
}

// delay blocks for the configured latency.
func (s *shaper) delay(ctx context.Context) error {
	if s.latency <= 0 {
		return nil
	}
	timer := time.NewTimer(s.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pace blocks until n bytes fit in the download budget.
func (s *shaper) pace(ctx context.Context, n int) error {
	if s.down == nil {
		return nil
	}
	for n > 0 {
		take := min(n, s.down.Burst())
		if err := s.down.WaitN(ctx, take); err != nil {
			return err
		}
		n -= take
	}
	return nil
}

// Emulate installs a route handler on page that applies p's latency to every
// request and paces response bodies at p's download throughput. Standard
// installs nothing. The handler stops shaping once ctx is done.
func Emulate(ctx context.Context, page playwright.Page, p Profile) error {
	cond := p.Conditions()
	if !cond.Throttled() {
		return nil
	}
	s := newShaper(cond)
	log := obs.From(ctx).With("pkg", "netprofile", "profile", string(p))

	return page.Route("**/*", func(route playwright.Route) {
		if err := s.delay(ctx); err != nil {
			_ = route.Continue()
			return
		}
		resp, err := route.Fetch()
		if err != nil {
			log.Debug("route fetch failed", "url", route.Request().URL(), "error", err)
			_ = route.Abort()
			return
		}
		body, err := resp.Body()
		if err == nil {
			if err := s.pace(ctx, len(body)); err != nil {
				log.Debug("pacing interrupted", "error", err)
			}
		}
		if err := route.Fulfill(playwright.RouteFulfillOptions{Response: resp}); err != nil {
			log.Debug("route fulfill failed", "url", route.Request().URL(), "error", err)
		}
	})
}

// EmulateLatency delays every request of page by d before letting it through
// unchanged.
func EmulateLatency(ctx context.Context, page playwright.Page, d time.Duration) error {
	s := &shaper{latency: d}
	return page.Route("**/*", func(route playwright.Route) {
		_ = s.delay(ctx)
		_ = route.Continue()
	})
}
