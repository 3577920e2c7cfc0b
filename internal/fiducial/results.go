package fiducial

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/squarefid/internal/geom"
	"github.com/MeKo-Tech/squarefid/internal/pose"
)

// Marker is one decoded fiducial.
type Marker struct {
	Candidate   int       `json:"candidate" yaml:"candidate"` // index of the input quadrilateral
	ID          uint64    `json:"id" yaml:"id"`
	Rotation    int       `json:"rotation" yaml:"rotation"`
	Corners     geom.Quad `json:"corners" yaml:"corners"` // Corners[0] is the anchor corner
	BorderBlack float64   `json:"border_black" yaml:"border_black"`

	Pose              *pose.Pose `json:"pose,omitempty" yaml:"pose,omitempty"`
	ReprojectionError float64    `json:"reprojection_error_px,omitempty" yaml:"reprojection_error_px,omitempty"`
}

// FrameResult is the outcome of one Detect call.
type FrameResult struct {
	Name       string         `json:"name,omitempty" yaml:"name,omitempty"`
	Width      int            `json:"width" yaml:"width"`
	Height     int            `json:"height" yaml:"height"`
	Candidates int            `json:"candidates" yaml:"candidates"`
	Markers    []Marker       `json:"markers" yaml:"markers"`
	Rejected   map[string]int `json:"rejected" yaml:"rejected"`
	DurationMs float64        `json:"duration_ms" yaml:"duration_ms"`
}

// RejectedTotal sums the rejection counts.
func (fr *FrameResult) RejectedTotal() int {
	n := 0
	for _, c := range fr.Rejected {
		n += c
	}
	return n
}

// IDs returns the decoded identities in result order.
func (fr *FrameResult) IDs() []uint64 {
	ids := make([]uint64, len(fr.Markers))
	for i, m := range fr.Markers {
		ids[i] = m.ID
	}
	return ids
}

// SortByID orders markers by identity, then candidate.
func SortByID(fr *FrameResult) {
	sort.SliceStable(fr.Markers, func(i, j int) bool {
		if fr.Markers[i].ID == fr.Markers[j].ID {
			return fr.Markers[i].Candidate < fr.Markers[j].Candidate
		}
		return fr.Markers[i].ID < fr.Markers[j].ID
	})
}

// ValidateFrameResult performs simple consistency checks.
func ValidateFrameResult(fr *FrameResult) error {
	if fr == nil {
		return errors.New("nil result")
	}
	if len(fr.Markers)+fr.RejectedTotal() != fr.Candidates {
		return fmt.Errorf("%d markers and %d rejections do not add up to %d candidates",
			len(fr.Markers), fr.RejectedTotal(), fr.Candidates)
	}
	for i, m := range fr.Markers {
		if m.Rotation < 0 || m.Rotation > 3 {
			return fmt.Errorf("marker %d has rotation %d", i, m.Rotation)
		}
		if m.Candidate < 0 || m.Candidate >= fr.Candidates {
			return fmt.Errorf("marker %d refers to candidate %d", i, m.Candidate)
		}
	}
	return nil
}

// ToJSON serializes results to pretty JSON.
func ToJSON(results []*FrameResult) (string, error) {
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToYAML serializes results to YAML.
func ToYAML(results []*FrameResult) (string, error) {
	b, err := yaml.Marshal(results)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToCSV writes one row per marker.
func ToCSV(results []*FrameResult) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{
		"frame", "candidate", "id", "rotation",
		"x0", "y0", "x1", "y1", "x2", "y2", "x3", "y3",
		"tx", "ty", "tz",
	})
	for _, fr := range results {
		if fr == nil {
			continue
		}
		for _, m := range fr.Markers {
			row := []string{fr.Name, strconv.Itoa(m.Candidate), strconv.FormatUint(m.ID, 10), strconv.Itoa(m.Rotation)}
			for _, c := range m.Corners {
				row = append(row, formatFloat(c.X), formatFloat(c.Y))
			}
			if m.Pose != nil {
				t := m.Pose.Translation
				row = append(row, formatFloat(t.X), formatFloat(t.Y), formatFloat(t.Z))
			} else {
				row = append(row, "", "", "")
			}
			_ = w.Write(row)
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// ToText renders a short human-readable report.
func ToText(results []*FrameResult) string {
	var sb strings.Builder
	for _, fr := range results {
		if fr == nil {
			continue
		}
		name := fr.Name
		if name == "" {
			name = "frame"
		}
		fmt.Fprintf(&sb, "%s: %d markers from %d candidates (%.2f ms)\n", name, len(fr.Markers), fr.Candidates, fr.DurationMs)
		for _, m := range fr.Markers {
			c := m.Corners[0]
			fmt.Fprintf(&sb, "  id=%d rotation=%d candidate=%d anchor=(%.1f, %.1f)", m.ID, m.Rotation, m.Candidate, c.X, c.Y)
			if m.Pose != nil {
				t := m.Pose.Translation
				fmt.Fprintf(&sb, " t=(%.3f, %.3f, %.3f) dist=%.3f", t.X, t.Y, t.Z, m.Pose.Distance())
			}
			sb.WriteByte('\n')
		}
		if len(fr.Rejected) > 0 {
			reasons := make([]string, 0, len(fr.Rejected))
			for r := range fr.Rejected {
				reasons = append(reasons, r)
			}
			sort.Strings(reasons)
			parts := make([]string, len(reasons))
			for i, r := range reasons {
				parts[i] = fmt.Sprintf("%s=%d", r, fr.Rejected[r])
			}
			fmt.Fprintf(&sb, "  rejected: %s\n", strings.Join(parts, " "))
		}
	}
	return sb.String()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

// Format renders results in one of the supported output formats.
func Format(results []*FrameResult, format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return ToText(results), nil
	case "json":
		return ToJSON(results)
	case "yaml":
		return ToYAML(results)
	case "csv":
		return ToCSV(results)
	default:
		return "", fmt.Errorf("unsupported output format: %s (must be one of: text, json, yaml, csv)", format)
	}
}
