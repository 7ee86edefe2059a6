// Package capability builds the capability descriptor sent to the remote grid.
//
// Descriptors are plain values. Every call to Template or Build returns an
// independent copy, so concurrent tests never observe each other's overrides.
package capability

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/kuitang/crossbrowser/internal/errs"
	"github.com/kuitang/crossbrowser/internal/netprofile"
	"github.com/kuitang/crossbrowser/internal/project"
)

const (
	// DefaultHost is the grid's Playwright endpoint host.
	DefaultHost = "cdp.lambdatest.com"
	// DefaultPath is the automation protocol path on the grid host.
	DefaultPath = "playwright"

	defaultBrowser  = "Chrome"
	defaultVersion  = "latest"
	defaultPlatform = "Windows 11"

	standardLabel = "Playwright Time out"
	degradedLabel = "Playwright Time out - Regular 2G"
)

// Credentials authenticate against the grid.
type Credentials struct {
	Username  string
	AccessKey string
}

// SmartUI configures visual regression on the grid.
type SmartUI struct {
	ProjectName string `json:"projectName"`
	BuildName   string `json:"buildName"`
}

// Options is the vendor-specific option block of a descriptor.
type Options struct {
	Platform          string  `json:"platform"`
	Build             string  `json:"build"`
	Name              string  `json:"name"`
	User              string  `json:"user"`
	AccessKey         string  `json:"accessKey"`
	Network           bool    `json:"network"`
	Video             bool    `json:"video"`
	Console           bool    `json:"console"`
	Tunnel            bool    `json:"tunnel"`
	TunnelName        string  `json:"tunnelName"`
	GeoLocation       string  `json:"geoLocation"`
	Timezone          string  `json:"timezone"`
	Resolution        string  `json:"resolution"`
	DeviceName        string  `json:"deviceName"`
	DeviceOrientation string  `json:"deviceOrientation"`
	SeleniumVersion   string  `json:"selenium_version"`
	DriverVersion     string  `json:"driver_version"`
	Visual            bool    `json:"visual"`
	SmartUI           SmartUI `json:"smartUI"`
	NetworkThrottling string  `json:"networkThrottling,omitempty"`
}

// Descriptor is the capability payload handed to the grid.
type Descriptor struct {
	BrowserName    string  `json:"browserName"`
	BrowserVersion string  `json:"browserVersion"`
	Options        Options `json:"LT:Options"`
}

// Template returns a fresh base descriptor for profile. The degraded template
// differs from the standard one only in throttling and labels.
func Template(creds Credentials, profile netprofile.Profile) Descriptor {
	label := standardLabel
	if profile == netprofile.Degraded {
		label = degradedLabel
	}
	return Descriptor{
		BrowserName:    defaultBrowser,
		BrowserVersion: defaultVersion,
		Options: Options{
			Platform:          defaultPlatform,
			Build:             label,
			Name:              label,
			User:              creds.Username,
			AccessKey:         creds.AccessKey,
			Network:           true,
			Video:             true,
			Console:           true,
			Tunnel:            false,
			Resolution:        "1920x1080",
			SeleniumVersion:   "4.0.0",
			DriverVersion:     "latest",
			Visual:            true,
			SmartUI:           SmartUI{ProjectName: label, BuildName: label},
			NetworkThrottling: profile.GridThrottling(),
		},
	}
}

// Build returns the descriptor for a remote project. Fields present in the
// project name override the template; absent ones keep its defaults. The run
// name is always displayName. Unknown browser families pass through for the
// grid to reject.
func Build(creds Credentials, projectName string, profile netprofile.Profile, displayName string) Descriptor {
	d := Template(creds, profile)
	id := project.Parse(projectName)
	if id.Family != "" {
		d.BrowserName = id.Family
	}
	if id.Version != "" {
		d.BrowserVersion = id.Version
	}
	if id.Platform != "" {
		d.Options.Platform = id.Platform
	}
	d.Options.Name = displayName
	return d
}

// Validate checks the fields the grid cannot default.
func (d Descriptor) Validate() error {
	var missing []string
	if strings.TrimSpace(d.BrowserName) == "" {
		missing = append(missing, "browserName")
	}
	if strings.TrimSpace(d.Options.Platform) == "" {
		missing = append(missing, "LT:Options.platform")
	}
	if len(missing) > 0 {
		return errs.New(errs.Invalid, "capability: missing "+strings.Join(missing, ", "))
	}
	return nil
}

// JSON serializes d after validating it.
func (d Descriptor) JSON() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "capability: marshal descriptor", err)
	}
	return raw, nil
}

// Endpoint returns the grid WebSocket URL carrying d as the capabilities
// query parameter. Empty host and path fall back to the defaults.
func Endpoint(host, path string, d Descriptor) (string, error) {
	raw, err := d.JSON()
	if err != nil {
		return "", err
	}
	if host = strings.TrimSpace(host); host == "" {
		host = DefaultHost
	}
	if path = strings.Trim(strings.TrimSpace(path), "/"); path == "" {
		path = DefaultPath
	}
	return fmt.Sprintf("wss://%s/%s?capabilities=%s", host, path, encodeURIComponent(string(raw))), nil
}

// encodeURIComponent escapes s the way browsers do for a URI component:
// spaces become %20 rather than '+'.
func encodeURIComponent(s string) string {
	escaped := url.QueryEscape(s)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	for _, keep := range []string{"!", "'", "(", ")", "*"} {
		escaped = strings.ReplaceAll(escaped, url.QueryEscape(keep), keep)
	}
	return escaped
}
