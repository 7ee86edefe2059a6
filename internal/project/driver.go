package project

import "strings"

// Driver selects the client protocol used to talk to a browser session. It is
// independent of the browser family the grid provisions.
type Driver int

const (
	Chromium Driver = iota
	Firefox
	WebKit
)

func (d Driver) String() string {
	switch d {
	case Firefox:
		return "firefox"
	case WebKit:
		return "webkit"
	default:
		return "chromium"
	}
}

// DriverFor maps a family token to a driver. Chrome, Edge, pw-chromium and
// anything unrecognized use Chromium.
func DriverFor(family string) Driver {
	f := strings.ToLower(strings.TrimSpace(family))
	switch {
	case strings.Contains(f, "firefox"):
		return Firefox
	case strings.Contains(f, "webkit"), strings.Contains(f, "safari"):
		return WebKit
	default:
		return Chromium
	}
}
