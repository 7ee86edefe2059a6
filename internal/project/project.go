// Package project interprets run-configuration project names.
//
// A remote project is named "<family>:<version>:<platform>@lambdatest"; any
// other name denotes a locally launched browser.
package project

import (
	"strings"

	"github.com/playwright-community/playwright-go"
)

// RemoteMarker tags a project as running on the remote grid.
const RemoteMarker = "lambdatest"

const fieldSep = ":"

// Identifier holds the fields encoded in a remote project name. Empty fields
// were absent from the name and leave the descriptor template's default.
type Identifier struct {
	Family   string
	Version  string
	Platform string
}

// IsRemote reports whether name follows the remote grid convention.
func IsRemote(name string) bool {
	return strings.Contains(name, RemoteMarker)
}

// Parse extracts up to three ordered fields from a remote project name.
// Everything from "@lambdatest" on is dropped; segments past the third are
// ignored.
func Parse(name string) Identifier {
	payload, _, _ := strings.Cut(name, "@"+RemoteMarker)
	parts := strings.Split(payload, fieldSep)

	var id Identifier
	if len(parts) > 0 {
		id.Family = parts[0]
	}
	if len(parts) > 1 {
		id.Version = parts[1]
	}
	if len(parts) > 2 {
		id.Platform = parts[2]
	}
	return id
}

// Project is one entry of the run configuration.
type Project struct {
	Name string
	// Use is passed to NewPage for every page opened under this project.
	Use playwright.BrowserNewPageOptions
}

// Remote reports whether p runs on the grid.
func (p Project) Remote() bool {
	return IsRemote(p.Name)
}

// Identifier parses p.Name.
func (p Project) Identifier() Identifier {
	return Parse(p.Name)
}

// DefaultNames are the projects of the stock run configuration.
var DefaultNames = []string{
	"local-chrome",
	"chrome:latest:macOS Sonoma@lambdatest",
	"pw-firefox:latest:macOS Sonoma@lambdatest",
	"pw-webkit:latest:macOS Sonoma@lambdatest",
}

// LocalDevice is the device profile applied to local projects.
const LocalDevice = "Desktop Chrome"

// FromNames builds projects for names. Local projects get the LocalDevice
// emulation options from devices when it has them; remote projects start with
// empty options. baseURL, when set, applies to every project.
func FromNames(names []string, baseURL string, devices map[string]*playwright.DeviceDescriptor) []Project {
	out := make([]Project, 0, len(names))
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		p := Project{Name: name}
		if !IsRemote(name) {
			if d, ok := devices[LocalDevice]; ok && d != nil {
				p.Use = deviceOptions(d)
			}
		}
		if baseURL != "" {
			p.Use.BaseURL = playwright.String(baseURL)
		}
		out = append(out, p)
	}
	return out
}

func deviceOptions(d *playwright.DeviceDescriptor) playwright.BrowserNewPageOptions {
	opts := playwright.BrowserNewPageOptions{
		UserAgent:         playwright.String(d.UserAgent),
		DeviceScaleFactor: playwright.Float(d.DeviceScaleFactor),
		IsMobile:          playwright.Bool(d.IsMobile),
		HasTouch:          playwright.Bool(d.HasTouch),
	}
	if d.Viewport != nil {
		opts.Viewport = &playwright.Size{Width: d.Viewport.Width, Height: d.Viewport.Height}
	}
	return opts
}

// SplitNames splits a comma-separated PROJECTS value.
func SplitNames(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// AnyRemote reports whether any of names is a remote project.
func AnyRemote(names []string) bool {
	for _, name := range names {
		if IsRemote(name) {
			return true
		}
	}
	return false
}
