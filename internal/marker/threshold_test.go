package marker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bitmapOf(side int, pix ...float32) *Bitmap {
	bm := &Bitmap{Side: side, Pix: make([]float32, side*side)}
	copy(bm.Pix, pix)
	return bm
}

func TestOtsuThreshold_TwoLevels(t *testing.T) {
	bm := bitmapOf(2, 0, 0, 255, 255)
	assert.InDelta(t, 127.5, OtsuThreshold{}.Threshold(bm), 1e-9)

	// Blurred levels still split between the class means.
	bm = bitmapOf(2, 30, 34, 196, 200)
	assert.InDelta(t, 115.0, OtsuThreshold{}.Threshold(bm), 1e-9)
}

func TestOtsuThreshold_Uniform(t *testing.T) {
	bm := bitmapOf(2, 90, 90, 90, 90)
	assert.InDelta(t, 90.0, OtsuThreshold{}.Threshold(bm), 1e-9)

	assert.InDelta(t, 127.5, otsuMidpoint(nil), 1e-9)
}

func TestOtsuThreshold_ClampsOutOfRange(t *testing.T) {
	bm := bitmapOf(2, -10, 0, 255, 300)
	thr := OtsuThreshold{}.Threshold(bm)
	assert.Greater(t, thr, 0.0)
	assert.Less(t, thr, 255.0)
}

func TestFixedThreshold(t *testing.T) {
	assert.InDelta(t, 42.0, FixedThreshold(42).Threshold(nil), 1e-9)
}

func TestParseThresholder(t *testing.T) {
	th, err := ParseThresholder("", 0)
	require.NoError(t, err)
	assert.IsType(t, OtsuThreshold{}, th)

	th, err = ParseThresholder(" OTSU ", 0)
	require.NoError(t, err)
	assert.IsType(t, OtsuThreshold{}, th)

	th, err = ParseThresholder("fixed", 100)
	require.NoError(t, err)
	assert.Equal(t, FixedThreshold(100), th)

	_, err = ParseThresholder("fixed", 300)
	require.Error(t, err)
	_, err = ParseThresholder("adaptive", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown threshold method")
}
