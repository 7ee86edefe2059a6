package fixture

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kuitang/crossbrowser/internal/project"
)

// Status is a test outcome as reported to the grid.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// TestError is the primary failure of a test.
type TestError struct {
	Message string
}

// Result is filled in while the test body runs and finalized by the adapter.
type Result struct {
	Status Status
	Error  *TestError
}

// fail marks r failed. The first message wins.
func (r *Result) fail(msg string) {
	r.Status = StatusFailed
	if r.Error == nil {
		r.Error = &TestError{Message: msg}
	}
}

// TestInfo describes the running test. Result may be written from any
// goroutine of the test through the T wrapper; read it with Outcome while the
// test is running.
type TestInfo struct {
	Title   string
	File    string
	Project project.Project
	Result  Result

	mu sync.Mutex
}

// Outcome returns a snapshot of the result.
func (info *TestInfo) Outcome() Result {
	info.mu.Lock()
	defer info.mu.Unlock()
	return info.Result
}

func (info *TestInfo) fail(msg string) {
	info.mu.Lock()
	defer info.mu.Unlock()
	info.Result.fail(msg)
}

func (info *TestInfo) skip() {
	info.mu.Lock()
	defer info.mu.Unlock()
	if info.Result.Status == "" {
		info.Result.Status = StatusSkipped
	}
}

// settle finalizes the result once the body is done. A status already
// recorded during the body is kept unless the body returned an error or
// panicked.
func (info *TestInfo) settle(err error, p any, completed bool) {
	info.mu.Lock()
	defer info.mu.Unlock()
	r := &info.Result
	switch {
	case p != nil:
		r.fail(fmt.Sprint(p))
	case err != nil:
		r.fail(err.Error())
	case r.Status != "":
	case completed:
		r.Status = StatusPassed
	default:
		r.fail("test exited before completing")
	}
}

// DisplayName is the run name shown on the grid: "<title> - <file base name>".
func (info *TestInfo) DisplayName() string {
	file := strings.TrimSpace(info.File)
	if file == "" {
		return info.Title
	}
	return info.Title + " - " + filepath.Base(file)
}

// Remark returns the failure message of info, if any. Every level of the
// lookup may be absent.
func Remark(info *TestInfo) (string, bool) {
	if info == nil {
		return "", false
	}
	if r := info.Outcome(); r.Error != nil {
		return r.Error.Message, true
	}
	return "", false
}
