package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/squarefid/internal/config"
	"github.com/MeKo-Tech/squarefid/internal/fiducial"
	"github.com/MeKo-Tech/squarefid/internal/geom"
	"github.com/MeKo-Tech/squarefid/internal/marker"
	"github.com/MeKo-Tech/squarefid/internal/testutil"
)

// writeScene saves a PNG with marker id pasted at (x, y) and returns its
// path and quadrilateral.
func writeScene(t *testing.T, dir string, id uint64, x, y int) (string, geom.Quad) {
	t.Helper()
	bm, err := marker.Render(id, marker.DefaultConfig())
	require.NoError(t, err)
	defer bm.Release()

	scene := testutil.NewScene(testutil.SmallSize[0], testutil.SmallSize[1], marker.White)
	q := testutil.PasteMarker(scene, bm, x, y)
	path := filepath.Join(dir, fmt.Sprintf("scene_%d.png", id))
	require.NoError(t, imaging.Save(scene.ToImage(), path))
	return path, q
}

func quadYAML(q geom.Quad) string {
	parts := make([]string, 4)
	for i, p := range q {
		parts[i] = fmt.Sprintf("[%g, %g]", p.X, p.Y)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func TestRunDetection(t *testing.T) {
	dir := t.TempDir()
	pathA, qa := writeScene(t, dir, 77, 100, 60)
	pathB, qb := writeScene(t, dir, 1234, 20, 20)

	quads := filepath.Join(dir, "quads.yaml")
	require.NoError(t, os.WriteFile(quads, []byte(fmt.Sprintf(
		"frames:\n  scene_77.png:\n    - %s\n    - [[0, 0], [1, 1], [2, 2], [3, 3]]\n  \"*\":\n    - %s\n",
		quadYAML(qa), quadYAML(qb))), 0o600))

	cfg := config.DefaultConfig()
	cfg.Output.Format = "csv"
	cfg.Parallel.MaxWorkers = 2

	var out bytes.Buffer
	err := runDetection(context.Background(), &cfg, detectOptions{quads: quads}, []string{pathA, pathB}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3, out.String())
	assert.True(t, strings.HasPrefix(lines[0], "frame,candidate,id,rotation"))
	assert.True(t, strings.HasPrefix(lines[1], pathA+",0,77,0,"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], pathB+",0,1234,0,"), lines[2])
}

func TestRunDetection_OutputFile(t *testing.T) {
	dir := t.TempDir()
	path, q := writeScene(t, dir, 9, 50, 50)
	quads := filepath.Join(dir, "quads.json")
	require.NoError(t, os.WriteFile(quads, []byte(`{"frames": {"*": [`+quadYAML(q)+`]}}`), 0o600))

	cfg := config.DefaultConfig()
	cfg.Output.Format = "json"
	cfg.Output.File = filepath.Join(dir, "out.json")

	var out bytes.Buffer
	require.NoError(t, runDetection(context.Background(), &cfg, detectOptions{quads: quads, sortByID: true, stats: true}, []string{path}, &out))
	assert.Empty(t, out.String())

	data, err := os.ReadFile(cfg.Output.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id": 9`)
}

func TestRunDetection_Errors(t *testing.T) {
	dir := t.TempDir()
	path, _ := writeScene(t, dir, 1, 10, 10)
	quads := filepath.Join(dir, "quads.yaml")
	require.NoError(t, os.WriteFile(quads, []byte("frames:\n  other.png: []\n"), 0o600))
	cfg := config.DefaultConfig()

	err := runDetection(context.Background(), &cfg, detectOptions{}, []string{path}, &bytes.Buffer{})
	require.ErrorContains(t, err, "--quads")

	err = runDetection(context.Background(), &cfg, detectOptions{quads: quads}, []string{path}, &bytes.Buffer{})
	require.ErrorIs(t, err, fiducial.ErrNoCandidates)

	err = runDetection(context.Background(), &cfg, detectOptions{quads: quads}, []string{filepath.Join(dir, "missing.png")}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		idRange string
		want    []uint64
		wantErr bool
	}{
		{name: "positional", args: []string{"3", "1"}, want: []uint64{3, 1}},
		{name: "range", idRange: "4-6", want: []uint64{4, 5, 6}},
		{name: "both", args: []string{"9"}, idRange: "0-1", want: []uint64{9, 0, 1}},
		{name: "single element range", idRange: "7-7", want: []uint64{7}},
		{name: "none", wantErr: true},
		{name: "bad id", args: []string{"x"}, wantErr: true},
		{name: "negative", args: []string{"-1"}, wantErr: true},
		{name: "bad range", idRange: "5", wantErr: true},
		{name: "reversed range", idRange: "6-4", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIDs(tt.args, tt.idRange)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteCapacity(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCapacity(&buf, []int{4, 6}))
	out := buf.String()
	assert.Contains(t, out, "identities")
	assert.Contains(t, out, "4,096")
	assert.Contains(t, out, "4,294,967,296")

	assert.ErrorIs(t, writeCapacity(&buf, []int{9}), marker.ErrGridWidth)
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	rootCmd.SetArgs([]string{"render", "5", "6", "--out-dir", dir, "--scale", "1", "--quiet", "0"})
	require.NoError(t, rootCmd.Execute())

	img, err := imaging.Open(filepath.Join(dir, "marker_6.png"))
	require.NoError(t, err)
	assert.Equal(t, marker.DefaultConfig().BitmapSide(), img.Bounds().Dx())
	assert.Contains(t, buf.String(), "marker_5.png")
}
