package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by Write.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the accepted output formats.
var Formats = []string{FormatText, FormatJSON, FormatYAML}

// Write renders reports in the given format. Clean reports are skipped
// unless all is set.
func Write(w io.Writer, reports []*Report, format string, all bool) error {
	var selected []*Report
	for _, r := range reports {
		if r != nil && (all || !r.Clean()) {
			selected = append(selected, r)
		}
	}

	switch format {
	case FormatText, "":
		for _, r := range selected {
			if _, err := fmt.Fprintln(w, r.Line()); err != nil {
				return err
			}
		}
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		for _, r := range selected {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("failed to encode report for %s: %w", r.Path, err)
			}
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		for _, r := range selected {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("failed to encode report for %s: %w", r.Path, err)
			}
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// Line renders the report as one line of text.
func (r *Report) Line() string {
	var sb strings.Builder
	sb.WriteString(r.Path)
	sb.WriteString(": ")
	switch {
	case r.Code != "":
		fmt.Fprintf(&sb, "%s (%s)", r.Code, r.Error)
	case len(r.Flags) == 0:
		sb.WriteString("ok")
	default:
		sb.WriteString(strings.Join(r.Flags, ", "))
	}
	if r.Copyright != nil && r.Copyright.Path != "" {
		fmt.Fprintf(&sb, " [copyright %d/%d]", r.Copyright.Position, r.Copyright.Total)
	}
	return sb.String()
}
