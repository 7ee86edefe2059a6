package fixture

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/crossbrowser/internal/project"
)

// T wraps a *testing.T so failures and skips reported through it reach the
// grid status report. It satisfies testing.TB and works with testify.
type T struct {
	*testing.T

	info *TestInfo
}

func (t *T) recordFailure(msg string) {
	t.info.fail(strings.TrimSpace(msg))
}

func (t *T) recordSkip() {
	t.info.skip()
}

func (t *T) Error(args ...any) {
	t.T.Helper()
	t.recordFailure(fmt.Sprintln(args...))
	t.T.Error(args...)
}

func (t *T) Errorf(format string, args ...any) {
	t.T.Helper()
	t.recordFailure(fmt.Sprintf(format, args...))
	t.T.Errorf(format, args...)
}

func (t *T) Fatal(args ...any) {
	t.T.Helper()
	t.recordFailure(fmt.Sprintln(args...))
	t.T.Fatal(args...)
}

func (t *T) Fatalf(format string, args ...any) {
	t.T.Helper()
	t.recordFailure(fmt.Sprintf(format, args...))
	t.T.Fatalf(format, args...)
}

func (t *T) Fail() {
	t.T.Helper()
	t.recordFailure("test failed")
	t.T.Fail()
}

func (t *T) FailNow() {
	t.T.Helper()
	t.recordFailure("test failed")
	t.T.FailNow()
}

func (t *T) Skip(args ...any) {
	t.T.Helper()
	t.recordSkip()
	t.T.Skip(args...)
}

func (t *T) Skipf(format string, args ...any) {
	t.T.Helper()
	t.recordSkip()
	t.T.Skipf(format, args...)
}

func (t *T) SkipNow() {
	t.T.Helper()
	t.recordSkip()
	t.T.SkipNow()
}

// Info returns the running test's description.
func (t *T) Info() *TestInfo {
	return t.info
}

// Origin is where a test is declared: its name and the source file of the
// function that runs it. The grid run name is built from it.
type Origin struct {
	Title string
	File  string
}

// OriginOf returns the origin of t with the file of the function skip frames
// above the caller of OriginOf. Helpers that start per-project subtests call
// OriginOf(t, 1) on the parent test so the run name names the suite file and
// the suite test, not the helper or the subtest.
func OriginOf(t testing.TB, skip int) Origin {
	_, file, _, _ := runtime.Caller(skip + 1)
	return Origin{Title: t.Name(), File: file}
}

// Run runs body as the test t under p, named after t and the caller's file.
// A failure to obtain a remote page fails t.
func (a *Adapter) Run(t *testing.T, p project.Project, local playwright.Page, body func(t *T, page playwright.Page)) {
	t.Helper()
	a.RunFrom(t, OriginOf(t, 1), p, local, body)
}

// RunFrom is Run with an explicit origin.
func (a *Adapter) RunFrom(t *testing.T, origin Origin, p project.Project, local playwright.Page, body func(t *T, page playwright.Page)) {
	t.Helper()
	info := &TestInfo{Title: origin.Title, File: origin.File, Project: p}
	ft := &T{T: t, info: info}

	err := a.Use(context.Background(), info, local, func(page playwright.Page) error {
		body(ft, page)
		return nil
	})
	if err != nil {
		t.Fatalf("%s: %v", p.Name, err)
	}
}
