package fiducial

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/squarefid/internal/geom"
)

// AnyFrame is the candidate file key that applies to frames without their
// own entry.
const AnyFrame = "*"

// ErrNoCandidates is returned when a candidate file has no entry for a frame.
var ErrNoCandidates = errors.New("no candidates for frame")

// CandidateFile lists candidate quadrilaterals per frame name. It is read
// from YAML or JSON:
//
//	frames:
//	  scene.png:
//	    - [[10, 90], [10, 10], [90, 10], [90, 90]]
//	  "*": []
type CandidateFile struct {
	Frames map[string][][][2]float64 `json:"frames" yaml:"frames"`
}

// LoadCandidates reads a candidate file.
func LoadCandidates(path string) (*CandidateFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: user-provided candidate file
	if err != nil {
		return nil, fmt.Errorf("failed to read candidate file: %w", err)
	}
	return ParseCandidates(data)
}

// ParseCandidates decodes a candidate file and validates every entry.
func ParseCandidates(data []byte) (*CandidateFile, error) {
	var cf CandidateFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse candidate file: %w", err)
	}
	for name, raw := range cf.Frames {
		if _, err := geom.ParseQuads(raw); err != nil {
			return nil, fmt.Errorf("frame %q: %w", name, err)
		}
	}
	return &cf, nil
}

// Lookup returns the candidates for a frame: the exact name first, then the
// base file name, then the AnyFrame entry.
func (cf *CandidateFile) Lookup(name string) ([]geom.Quad, error) {
	for _, key := range []string{name, filepath.Base(name), AnyFrame} {
		if raw, ok := cf.Frames[key]; ok {
			return geom.ParseQuads(raw)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoCandidates, name)
}
