// Package config loads run configuration for the cross-browser harness from
// environment variables and CLI flags, validates required fields, and
// provides defaults.
//
// Grid credentials come from LT_USERNAME and LT_ACCESS_KEY. They are required
// only when at least one selected project runs on the remote grid.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kuitang/crossbrowser/internal/artifacts"
	"github.com/kuitang/crossbrowser/internal/capability"
	"github.com/kuitang/crossbrowser/internal/logutil"
	"github.com/kuitang/crossbrowser/internal/netprofile"
	"github.com/kuitang/crossbrowser/internal/project"
)

const (
	defaultBaseURL     = "https://www.lambdatest.com/selenium-playground"
	defaultTestTimeout = 5 * time.Minute
	defaultAWSRegion   = "us-east-1"

	// accessKeyPreview is how many access key characters the startup summary shows.
	accessKeyPreview = 5
)

// Config holds all run configuration.
type Config struct {
	// Grid
	Username  string
	AccessKey string
	GridHost  string
	GridPath  string

	// Network profile override token, as given, and its resolution.
	NetworkType string
	Network     netprofile.Profile

	// Projects and test policy
	BaseURL     string
	Projects    []string
	CI          bool
	Retries     int
	Workers     int // 0 lets the test runner decide
	TestTimeout time.Duration

	// Outputs
	ReportDir string

	// Artifact store (S3-compatible); disabled unless ArtifactBucket is set.
	ArtifactBucket     string // ARTIFACT_BUCKET
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	ArtifactPublicURL  string // ARTIFACT_PUBLIC_URL

	// Connect asks the CLI to open a real session per remote project.
	Connect bool
}

// Flags are the CLI overrides. Empty values leave the environment in charge.
type Flags struct {
	Projects  string
	Network   string
	ReportDir string
	Connect   bool
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags registers and parses the CLI flags from args.
func ParseFlags(args []string) (Flags, error) {
	var f Flags
	fs := flag.NewFlagSet("gridcheck", flag.ContinueOnError)
	fs.StringVar(&f.Projects, "projects", "", "Comma-separated project names (overrides PROJECTS)")
	fs.StringVar(&f.Network, "network", "", "Network profile token (overrides NETWORK_TYPE)")
	fs.StringVar(&f.ReportDir, "report-dir", "", "Write the run report to this directory (overrides REPORT_DIR)")
	fs.BoolVar(&f.Connect, "connect", false, "Open and tear down one session per remote project")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// LoadConfig loads configuration from environment variables and CLI flag values.
func LoadConfig(flags Flags) (*Config, error) {
	cfg := &Config{}

	// Grid
	cfg.Username = strings.TrimSpace(os.Getenv("LT_USERNAME"))
	cfg.AccessKey = strings.TrimSpace(os.Getenv("LT_ACCESS_KEY"))
	cfg.GridHost = getEnvOrDefault("LT_GRID_HOST", capability.DefaultHost)
	cfg.GridPath = getEnvOrDefault("LT_GRID_PATH", capability.DefaultPath)

	// Network profile
	cfg.NetworkType = os.Getenv(netprofile.EnvVar)
	if flags.Network != "" {
		cfg.NetworkType = flags.Network
	}
	cfg.Network = netprofile.Resolve(cfg.NetworkType)

	// Projects and test policy
	cfg.BaseURL = getEnvOrDefault("BASE_URL", defaultBaseURL)
	cfg.Projects = project.SplitNames(os.Getenv("PROJECTS"))
	if flags.Projects != "" {
		cfg.Projects = project.SplitNames(flags.Projects)
	}
	if len(cfg.Projects) == 0 {
		cfg.Projects = append([]string(nil), project.DefaultNames...)
	}
	cfg.CI = parseBoolOrDefault("CI", false)
	if cfg.CI {
		cfg.Retries = 2
		cfg.Workers = 1
	}
	cfg.Retries = parseIntOrDefault("RETRIES", cfg.Retries)
	cfg.TestTimeout = parseDurationOrDefault("TEST_TIMEOUT", defaultTestTimeout)

	// Outputs
	cfg.ReportDir = strings.TrimSpace(os.Getenv("REPORT_DIR"))
	if flags.ReportDir != "" {
		cfg.ReportDir = flags.ReportDir
	}

	// Artifact store
	cfg.ArtifactBucket = strings.TrimSpace(os.Getenv("ARTIFACT_BUCKET"))
	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultAWSRegion)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.ArtifactPublicURL = strings.TrimSpace(os.Getenv("ARTIFACT_PUBLIC_URL"))
	if cfg.ArtifactPublicURL == "" && cfg.AWSEndpointS3 != "" && cfg.ArtifactBucket != "" {
		cfg.ArtifactPublicURL = strings.TrimRight(cfg.AWSEndpointS3, "/") + "/" + cfg.ArtifactBucket
	}

	cfg.Connect = flags.Connect

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.RequiresCredentials() {
		if c.Username == "" {
			errs = append(errs, "LT_USERNAME is required for remote projects (set env var or select only local projects)")
		}
		if c.AccessKey == "" {
			errs = append(errs, "LT_ACCESS_KEY is required for remote projects (set env var or select only local projects)")
		}
	}

	if len(c.Projects) == 0 {
		errs = append(errs, "at least one project is required (PROJECTS)")
	}
	if c.TestTimeout <= 0 {
		errs = append(errs, "TEST_TIMEOUT must be positive")
	}
	if c.Retries < 0 {
		errs = append(errs, "RETRIES must not be negative")
	}

	// Artifact store: a bucket needs somewhere to live and a way in.
	if c.ArtifactBucket != "" {
		if c.AWSAccessKeyID == "" || c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required when ARTIFACT_BUCKET is set")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// RequiresCredentials reports whether any selected project runs remotely.
func (c *Config) RequiresCredentials() bool {
	return project.AnyRemote(c.Projects)
}

// Credentials returns the grid credentials.
func (c *Config) Credentials() capability.Credentials {
	return capability.Credentials{Username: c.Username, AccessKey: c.AccessKey}
}

// ArtifactsEnabled reports whether an artifact bucket is configured.
func (c *Config) ArtifactsEnabled() bool {
	return c.ArtifactBucket != ""
}

// ArtifactConfig returns the S3 client configuration for the artifact store.
func (c *Config) ArtifactConfig() artifacts.Config {
	return artifacts.Config{
		Endpoint:        c.AWSEndpointS3,
		Region:          c.AWSRegion,
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
		BucketName:      c.ArtifactBucket,
		PublicURL:       c.ArtifactPublicURL,
		UsePathStyle:    c.AWSEndpointS3 != "",
	}
}

// PrintStartupSummary prints a human-readable summary of the configuration.
// The access key is shown only by its first characters.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "cross-browser run configuration")

	if c.RequiresCredentials() {
		fmt.Fprintf(w, "  Grid:      wss://%s/%s\n", c.GridHost, c.GridPath)
		fmt.Fprintf(w, "  Username:  %s\n", c.Username)
		fmt.Fprintf(w, "  AccessKey: %s\n", logutil.MaskSecret(c.AccessKey, accessKeyPreview))
	} else {
		fmt.Fprintln(w, "  Grid:      not used (local projects only)")
	}

	fmt.Fprintf(w, "  Network:   %s", c.Network)
	if c.NetworkType != "" {
		fmt.Fprintf(w, " (%s=%q)", netprofile.EnvVar, c.NetworkType)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Base URL:  %s\n", c.BaseURL)
	fmt.Fprintf(w, "  Projects:  %s\n", strings.Join(c.Projects, ", "))
	if c.CI {
		fmt.Fprintf(w, "  CI:        retries=%d workers=%d\n", c.Retries, c.Workers)
	}
	if c.ArtifactsEnabled() {
		fmt.Fprintf(w, "  Artifacts: s3://%s\n", c.ArtifactBucket)
	}
	if c.ReportDir != "" {
		fmt.Fprintf(w, "  Report:    %s\n", c.ReportDir)
	}
	fmt.Fprintln(w, "")
}

// credentialGuidance is printed when the grid credentials are missing.
const credentialGuidance = `Remote grid credentials not found.
Set LT_USERNAME and LT_ACCESS_KEY in the environment or in a .env file (for
example from your LambdaTest profile page), or select only local projects with
PROJECTS=local-chrome.`

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		// Any non-boolean value still counts as set, as CI runners export
		// arbitrary strings here.
		return true
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// DotEnvFile is read by MustLoadConfig from the working directory. Variables
// already in the environment win over the file.
const DotEnvFile = ".env"

// LoadDotEnv adds the variables of path to the environment without overriding
// any that are set. A missing file is not an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// MustLoadConfig loads DotEnvFile and then the configuration, and exits the
// process with status 1 when either fails, printing credential guidance when
// credentials are the problem. Use it before any test runs.
func MustLoadConfig(flags Flags) *Config {
	if err := LoadDotEnv(DotEnvFile); err != nil {
		fmt.Fprintln(os.Stderr, "Error: read "+DotEnvFile+":", err)
		os.Exit(1)
	}
	cfg, err := LoadConfig(flags)
	if err == nil {
		return cfg
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	var validationErr *ValidationError
	if errors.As(err, &validationErr) && mentionsCredentials(validationErr) {
		fmt.Fprintln(os.Stderr, credentialGuidance)
	}
	os.Exit(1)
	return nil
}

func mentionsCredentials(err *ValidationError) bool {
	for _, msg := range err.Errors {
		if strings.HasPrefix(msg, "LT_USERNAME") || strings.HasPrefix(msg, "LT_ACCESS_KEY") {
			return true
		}
	}
	return false
}
