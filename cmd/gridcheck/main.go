// Command gridcheck prints what each configured project would run on: mode,
// connection driver, the capability descriptor and the grid endpoint, with
// credentials redacted. With -connect it opens and tears down one session per
// remote project through the fixture adapter.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/crossbrowser/internal/capability"
	"github.com/kuitang/crossbrowser/internal/config"
	"github.com/kuitang/crossbrowser/internal/errs"
	"github.com/kuitang/crossbrowser/internal/fixture"
	"github.com/kuitang/crossbrowser/internal/logutil"
	"github.com/kuitang/crossbrowser/internal/netprofile"
	"github.com/kuitang/crossbrowser/internal/obs"
	"github.com/kuitang/crossbrowser/internal/project"
	"github.com/kuitang/crossbrowser/internal/report"
)

const reportTitle = "Grid check"

func main() {
	os.Exit(runMain(os.Args[1:]))
}

func runMain(args []string) int {
	obs.Init()

	flags, err := config.ParseFlags(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return errs.Invalid.ExitStatus()
	}

	cfg := config.MustLoadConfig(flags)
	cfg.PrintStartupSummary(os.Stdout)

	var connector fixture.Connector
	if cfg.Connect {
		pw, err := playwright.Run()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error: playwright not available:", err)
			return errs.Driver.ExitStatus()
		}
		defer pw.Stop()
		connector = fixture.PlaywrightConnector{PW: pw}
	}

	if err := run(context.Background(), cfg, connector, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return errs.ExitStatus(err)
	}
	return 0
}

// Plan is what gridcheck reports for one project.
type Plan struct {
	Project    string
	Mode       string
	Driver     string
	Descriptor string
	Endpoint   string
}

// planFor describes p without contacting the grid. Local projects carry
// neither descriptor nor endpoint.
func planFor(cfg *config.Config, p project.Project) (Plan, error) {
	plan := Plan{Project: p.Name, Mode: "local", Driver: project.Chromium.String()}
	if !p.Remote() {
		return plan, nil
	}
	plan.Mode = "remote"

	desc := capability.Build(cfg.Credentials(), p.Name, cfg.Network, "gridcheck - "+p.Name)
	plan.Driver = project.DriverFor(p.Identifier().Family).String()

	raw, err := desc.JSON()
	if err != nil {
		return plan, err
	}
	endpoint, err := capability.Endpoint(cfg.GridHost, cfg.GridPath, desc)
	if err != nil {
		return plan, err
	}
	plan.Descriptor = logutil.RedactJSON(raw)
	plan.Endpoint = logutil.RedactEndpoint(endpoint)
	return plan, nil
}

func printPlan(w io.Writer, plan Plan) {
	fmt.Fprintf(w, "%s\n", plan.Project)
	fmt.Fprintf(w, "  mode:       %s\n", plan.Mode)
	fmt.Fprintf(w, "  driver:     %s\n", plan.Driver)
	if plan.Descriptor != "" {
		fmt.Fprintf(w, "  descriptor: %s\n", plan.Descriptor)
		fmt.Fprintf(w, "  endpoint:   %s\n", plan.Endpoint)
	}
}

// run prints a plan per project. With a connector it also opens one session
// per remote project. Every project is attempted; the first error is
// returned.
func run(ctx context.Context, cfg *config.Config, connector fixture.Connector, w io.Writer) error {
	rec := report.NewRecorder()
	adapter := fixture.New(fixture.Options{
		GridHost:    cfg.GridHost,
		GridPath:    cfg.GridPath,
		Credentials: cfg.Credentials(),
		Connector:   connector,
		LookupEnv:   lookupNetwork(cfg),
		Recorder:    rec,
	})

	var firstErr error
	for _, p := range project.FromNames(cfg.Projects, cfg.BaseURL, nil) {
		plan, err := planFor(cfg, p)
		if err != nil {
			fmt.Fprintf(w, "%s\n  error: %v\n", p.Name, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		printPlan(w, plan)

		if connector == nil || !p.Remote() {
			continue
		}
		start := time.Now()
		info := &fixture.TestInfo{Title: "gridcheck", File: "gridcheck", Project: p}
		err = adapter.Use(ctx, info, nil, func(page playwright.Page) error { return nil })
		if err != nil {
			fmt.Fprintf(w, "  connect:    failed: %v\n", err)
			if firstErr == nil {
				firstErr = errs.Wrap(errs.GridConnect, "connect "+p.Name, err)
			}
			continue
		}
		fmt.Fprintf(w, "  connect:    ok (%s)\n", time.Since(start).Round(time.Millisecond))
	}

	if cfg.ReportDir != "" {
		if err := rec.WriteFiles(cfg.ReportDir, reportTitle); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// lookupNetwork answers the adapter's profile lookup from cfg, so a -network
// flag reaches the descriptor the same way NETWORK_TYPE does.
func lookupNetwork(cfg *config.Config) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if key == netprofile.EnvVar && cfg.NetworkType != "" {
			return cfg.NetworkType, true
		}
		return os.LookupEnv(key)
	}
}
