package summarizer

import (
	"fmt"
	"strings"

	"github.com/user/h264plugin/pkg/ports"
)

// MarkdownFormatter renders a Summary as Markdown tables.
type MarkdownFormatter struct {
	translate func(string) string
	version   string
}

// MarkdownOption configures a MarkdownFormatter.
type MarkdownOption func(*MarkdownFormatter)

// WithTranslator translates headings and row labels.
func WithTranslator(fn func(string) string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.translate = fn
	}
}

// WithVersion adds a "Generated by" footer.
func WithVersion(version string) MarkdownOption {
	return func(f *MarkdownFormatter) {
		f.version = version
	}
}

// NewMarkdownFormatter creates a MarkdownFormatter.
func NewMarkdownFormatter(opts ...MarkdownOption) *MarkdownFormatter {
	f := &MarkdownFormatter{translate: func(s string) string { return s }}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format implements Formatter.
func (f *MarkdownFormatter) Format(s *Summary) string {
	t := f.translate
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", t("Decode Summary"))
	fmt.Fprintf(&b, "%s: %s\n\n", t("Generated"), s.GeneratedAt.Format("2006-01-02 15:04:05"))

	f.table(&b, t("Input"), [][2]string{
		{t("File"), s.Input.Path},
		{t("File Size"), formatBytes(s.Input.Size)},
		{t("Duration"), formatSeconds(s.Input.Duration)},
	})

	if len(s.Tracks) > 0 {
		fmt.Fprintf(&b, "## %s\n\n", t("Tracks"))
		fmt.Fprintf(&b, "| # | %s | %s | %s | %s | %s |\n", t("Type"), t("Codec"), t("Format"), t("Samples"), t("Duration"))
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, tr := range s.Tracks {
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %d | %s |\n",
				tr.TrackID, tr.Type, tr.Codec, trackFormat(tr), tr.SampleCount, formatSeconds(tr.Duration))
		}
		b.WriteString("\n")
	}

	d := s.Decode
	rows := [][2]string{
		{t("Video Frames"), fmt.Sprintf("%d", d.VideoFrames)},
		{t("Keyframes"), fmt.Sprintf("%d", d.Keyframes)},
		{t("Audio Frames"), fmt.Sprintf("%d", d.AudioFrames)},
		{t("Decode Errors"), fmt.Sprintf("%d", d.Errors)},
	}
	if d.Width > 0 {
		rows = append(rows, [2]string{t("Picture Size"), fmt.Sprintf("%dx%d", d.Width, d.Height)})
	}
	rows = append(rows,
		[2]string{t("Elapsed"), fmt.Sprintf("%d ms", d.ElapsedMs)},
		[2]string{t("Decode Speed"), fmt.Sprintf("%.1f fps", d.FPS())},
	)
	f.table(&b, t("Results"), rows)

	audio := t("Disabled")
	if s.Settings.AudioEnabled {
		audio = t("Enabled")
	}
	maxFrames := t("All")
	if s.Settings.MaxFrames > 0 {
		maxFrames = fmt.Sprintf("%d", s.Settings.MaxFrames)
	}
	f.table(&b, t("Settings"), [][2]string{
		{t("Backend"), s.Settings.Backend},
		{t("Audio"), audio},
		{t("Start"), formatSeconds(s.Settings.StartSec)},
		{t("Max Frames"), maxFrames},
	})

	if f.version != "" {
		fmt.Fprintf(&b, "---\n%s h264plugin %s\n", t("Generated by"), f.version)
	}
	return b.String()
}

func (f *MarkdownFormatter) table(b *strings.Builder, title string, rows [][2]string) {
	fmt.Fprintf(b, "## %s\n\n", title)
	fmt.Fprintf(b, "| %s | %s |\n|---|---|\n", f.translate("Item"), f.translate("Value"))
	for _, r := range rows {
		fmt.Fprintf(b, "| %s | %s |\n", r[0], r[1])
	}
	b.WriteString("\n")
}

func trackFormat(t ports.TrackInfo) string {
	switch t.Type {
	case ports.TrackVideo:
		return fmt.Sprintf("%dx%d", t.Width, t.Height)
	case ports.TrackAudio:
		return fmt.Sprintf("%d Hz, %d ch", t.SampleRate, t.Channels)
	default:
		return "-"
	}
}

func formatSeconds(s float64) string {
	return fmt.Sprintf("%.3f s", s)
}

// formatBytes formats a byte count with binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMG"[exp])
}
