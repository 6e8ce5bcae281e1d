package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Indicator represents a progress indicator interface
type Indicator interface {
	Start(message string)
	Update(message string)
	Complete(message string)
	Fail(message string)
	Stop()
}

// PercentIndicator is implemented by indicators that can render a percentage
type PercentIndicator interface {
	Indicator
	SetProgress(percent int, message string)
}

// ProgressBar creates a visual progress bar
type ProgressBar struct {
	writer  io.Writer
	message string
	total   int
	current int
	width   int
	active  bool
}

// NewProgressBar creates a new progress bar
func NewProgressBar(total int) *ProgressBar {
	return NewProgressBarWriter(os.Stdout, total)
}

// NewProgressBarWriter creates a progress bar writing to w
func NewProgressBarWriter(w io.Writer, total int) *ProgressBar {
	if total <= 0 {
		total = 100
	}
	return &ProgressBar{
		writer: w,
		total:  total,
		width:  40,
	}
}

// Start begins the progress bar
func (p *ProgressBar) Start(message string) {
	p.message = message
	p.active = true
	p.current = 0
	p.render()
}

// Update redraws the bar with a new message
func (p *ProgressBar) Update(message string) {
	p.message = message
	p.render()
}

// SetProgress sets specific progress value
func (p *ProgressBar) SetProgress(current int, message string) {
	if current > p.total {
		current = p.total
	}
	p.current = current
	p.message = message
	p.render()
}

// Complete finishes the progress bar
func (p *ProgressBar) Complete(message string) {
	p.current = p.total
	p.message = message
	p.render()
	fmt.Fprintf(p.writer, " ✅ %s\n", message)
	p.Stop()
}

// Fail stops the progress bar with failure
func (p *ProgressBar) Fail(message string) {
	p.render()
	fmt.Fprintf(p.writer, " ❌ %s\n", message)
	p.Stop()
}

// Stop stops the progress bar
func (p *ProgressBar) Stop() {
	p.active = false
}

// render draws the progress bar
func (p *ProgressBar) render() {
	if !p.active {
		return
	}

	percent := float64(p.current) / float64(p.total)
	filled := int(percent * float64(p.width))

	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)

	fmt.Fprintf(p.writer, "\n%s [%s] %d%%", p.message, bar, int(percent*100))
}

// LineByLine creates a line-by-line progress indicator
type LineByLine struct {
	writer io.Writer
	silent bool
}

// NewLineByLine creates a new line-by-line progress indicator
func NewLineByLine() *LineByLine {
	return NewLineByLineWriter(os.Stdout)
}

// NewLineByLineWriter creates a line-by-line indicator writing to w
func NewLineByLineWriter(w io.Writer) *LineByLine {
	return &LineByLine{writer: w}
}

// NewQuietLineByLine creates a quiet line-by-line progress indicator
func NewQuietLineByLine() *LineByLine {
	return &LineByLine{
		writer: os.Stdout,
		silent: true,
	}
}

// Start shows the initial message
func (l *LineByLine) Start(message string) {
	fmt.Fprintf(l.writer, "\n🔄 %s\n", message)
}

// Update shows an update message
func (l *LineByLine) Update(message string) {
	if !l.silent {
		fmt.Fprintf(l.writer, "   %s\n", message)
	}
}

// Complete shows completion message
func (l *LineByLine) Complete(message string) {
	fmt.Fprintf(l.writer, "✅ %s\n\n", message)
}

// Fail shows failure message
func (l *LineByLine) Fail(message string) {
	fmt.Fprintf(l.writer, "❌ %s\n\n", message)
}

// Stop does nothing for line-by-line (no cleanup needed)
func (l *LineByLine) Stop() {}

// Light creates a minimal progress indicator with just essential status
type Light struct {
	writer io.Writer
}

// NewLight creates a new light progress indicator
func NewLight() *Light {
	return &Light{writer: os.Stdout}
}

func (l *Light) Start(message string) {
	fmt.Fprintf(l.writer, "▶ %s\n", message)
}

func (l *Light) Update(message string) {
	fmt.Fprintf(l.writer, "  %s\n", message)
}

func (l *Light) Complete(message string) {
	fmt.Fprintf(l.writer, "✓ %s\n", message)
}

func (l *Light) Fail(message string) {
	fmt.Fprintf(l.writer, "✗ %s\n", message)
}

func (l *Light) Stop() {}

// NewIndicator creates an appropriate progress indicator based on environment
func NewIndicator(interactive bool, indicatorType string) Indicator {
	if !interactive {
		return NewLineByLine() // Use line-by-line for non-interactive mode
	}

	switch indicatorType {
	case "bar":
		return NewProgressBar(100)
	case "light":
		return NewLight()
	case "quiet":
		return NewQuietLineByLine()
	default:
		return NewLineByLine()
	}
}

// NullIndicator is a no-op indicator that produces no output (for TUI mode)
type NullIndicator struct{}

// NewNullIndicator creates an indicator that does nothing
func NewNullIndicator() *NullIndicator {
	return &NullIndicator{}
}

func (n *NullIndicator) Start(message string)    {}
func (n *NullIndicator) Update(message string)   {}
func (n *NullIndicator) Complete(message string) {}
func (n *NullIndicator) Fail(message string)     {}
func (n *NullIndicator) Stop()                   {}
