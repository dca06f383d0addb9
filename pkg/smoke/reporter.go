package smoke

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var rule = strings.Repeat("=", 60)

// Reporter writes the human-readable progress of a run. Styling is dropped
// when the writer is not a terminal.
type Reporter struct {
	w     io.Writer
	title lipgloss.Style
	ok    lipgloss.Style
	fail  lipgloss.Style
	dim   lipgloss.Style
}

// NewReporter returns a Reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	r := lipgloss.NewRenderer(w)
	return &Reporter{
		w:     w,
		title: r.NewStyle().Bold(true),
		ok:    r.NewStyle().Foreground(lipgloss.Color("#00ff9f")),
		fail:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#ff5f5f")),
		dim:   r.NewStyle().Foreground(lipgloss.Color("#6e7681")),
	}
}

func (r *Reporter) println(s string) {
	fmt.Fprintln(r.w, s)
}

// Header prints the opening banner.
func (r *Reporter) Header(title string) {
	r.println(rule)
	r.println(r.title.Render(title))
	r.println(rule)
	r.println("")
}

// Step announces step n.
func (r *Reporter) Step(n int, title string) {
	r.println(fmt.Sprintf("Test %d: %s", n, title))
}

// Success prints a checkmarked line.
func (r *Reporter) Success(format string, args ...any) {
	r.println(r.ok.Render("✓ " + fmt.Sprintf(format, args...)))
}

// Detail prints an indented line under the current step.
func (r *Reporter) Detail(format string, args ...any) {
	r.println(r.dim.Render("  " + fmt.Sprintf(format, args...)))
}

// Blank separates steps.
func (r *Reporter) Blank() {
	r.println("")
}

// Passed prints the all-clear banner.
func (r *Reporter) Passed() {
	r.println(rule)
	r.println(r.ok.Render("✓✓✓ ALL TESTS PASSED - MILVUS IS HEALTHY ✓✓✓"))
	r.println(rule)
}

// Failed prints the failure banner, the error message and its stack trace.
func (r *Reporter) Failed(err error) {
	r.println("")
	r.println(rule)
	r.println(r.fail.Render("✗✗✗ TEST FAILED ✗✗✗"))
	r.println(rule)
	r.println(fmt.Sprintf("Error: %v", err))
	r.println("")
	fmt.Fprintf(r.w, "%+v\n", err)
}

// Disconnected prints the closing line once the connection is closed.
func (r *Reporter) Disconnected() {
	r.println("")
	r.println("Disconnected from Milvus")
}
