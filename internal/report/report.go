// Package report collects per-test outcomes during a run and renders them as
// Markdown and sanitized HTML.
package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/crossbrowser/internal/artifacts"
	"github.com/kuitang/crossbrowser/internal/errs"
	"github.com/kuitang/crossbrowser/internal/logutil"
)

const (
	MarkdownFile = "report.md"
	HTMLFile     = "report.html"

	maxRemarkChars = 300
)

// Entry is the outcome of one test under one project.
type Entry struct {
	Project  string
	Test     string
	Mode     string
	Status   string
	Remark   string
	Duration time.Duration
}

// Recorder collects entries from concurrently running tests.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends e.
func (r *Recorder) Record(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Entries returns a copy sorted by project, then test.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	out := append([]Entry(nil), r.entries...)
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Project != out[j].Project {
			return out[i].Project < out[j].Project
		}
		return out[i].Test < out[j].Test
	})
	return out
}

// Counts returns the number of entries per status.
func (r *Recorder) Counts() map[string]int {
	counts := make(map[string]int)
	for _, e := range r.Entries() {
		counts[e.Status]++
	}
	return counts
}

// Markdown renders the summary and one table row per entry.
func (r *Recorder) Markdown(title string) string {
	entries := r.Entries()
	counts := r.Counts()

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", escapeCell(title))
	fmt.Fprintf(&b, "%d tests: %d passed, %d failed, %d skipped\n\n",
		len(entries), counts["passed"], counts["failed"], counts["skipped"])

	if len(entries) == 0 {
		b.WriteString("No tests recorded.\n")
		return b.String()
	}

	b.WriteString("| Project | Test | Mode | Status | Duration | Remark |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			escapeCell(e.Project),
			escapeCell(e.Test),
			escapeCell(e.Mode),
			escapeCell(e.Status),
			e.Duration.Round(time.Millisecond),
			escapeCell(logutil.TruncateForLog(e.Remark, maxRemarkChars)),
		)
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, `\n`, " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: system-ui, sans-serif; margin: 2rem; }
        table { border-collapse: collapse; }
        th, td { border: 1px solid #ddd; padding: 0.3rem 0.6rem; text-align: left; }
    </style>
</head>
<body>
{{.Content}}
</body>
</html>
`

var pageTemplate = template.Must(template.New("report").Parse(htmlTemplate))

// HTML renders the Markdown report as a complete HTML document. Remarks carry
// text from third-party pages, so the rendered body is sanitized.
func (r *Recorder) HTML(title string) ([]byte, error) {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(r.Markdown(title)))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	body := bluemonday.UGCPolicy().SanitizeBytes(markdown.Render(doc, renderer))

	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		Title   string
		Content template.HTML
	}{
		Title:   title,
		Content: template.HTML(body),
	})
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "report: render html", err)
	}
	return buf.Bytes(), nil
}

// WriteFiles writes report.md and report.html into dir, creating it if needed.
func (r *Recorder) WriteFiles(dir, title string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.Internal, "report: create "+dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, MarkdownFile), []byte(r.Markdown(title)), 0o644); err != nil {
		return errs.Wrap(errs.Internal, "report: write markdown", err)
	}
	page, err := r.HTML(title)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, HTMLFile), page, 0o644); err != nil {
		return errs.Wrap(errs.Internal, "report: write html", err)
	}
	return nil
}

// Upload stores both renderings under the run's prefix and returns the HTML
// report URL.
func (r *Recorder) Upload(ctx context.Context, store artifacts.Store, runID, title string) (string, error) {
	mdKey := artifacts.RunKey(runID, MarkdownFile)
	if err := store.PutObject(ctx, mdKey, []byte(r.Markdown(title)), "text/markdown; charset=utf-8"); err != nil {
		return "", err
	}
	page, err := r.HTML(title)
	if err != nil {
		return "", err
	}
	htmlKey := artifacts.RunKey(runID, HTMLFile)
	if err := store.PutObject(ctx, htmlKey, page, "text/html; charset=utf-8"); err != nil {
		return "", err
	}
	return store.PublicURL(htmlKey), nil
}
