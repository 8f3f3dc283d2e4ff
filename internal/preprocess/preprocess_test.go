package preprocess

import (
	"image"
	"image/color"
	"testing"
)

func whiteRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func blackRect(img *image.RGBA, x0, y0, x1, y1 int) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.Set(x, y, color.Black)
		}
	}
}

func TestPreprocessProducesBinaryGray(t *testing.T) {
	img := whiteRGBA(60, 60)
	blackRect(img, 10, 10, 14, 14) // below the deskew threshold

	out := Preprocess(img)

	if out.Bounds() != image.Rect(0, 0, 60, 60) {
		t.Fatalf("unexpected bounds %v", out.Bounds())
	}
	for y := 0; y < 60; y++ {
		for x := 0; x < 60; x++ {
			v := out.GrayAt(x, y).Y
			if v != 0 && v != 255 {
				t.Fatalf("pixel (%d,%d) = %d, want 0 or 255", x, y, v)
			}
		}
	}
}

func TestPreprocessDeterministic(t *testing.T) {
	img := whiteRGBA(50, 50)
	blackRect(img, 5, 20, 45, 30)

	a := Preprocess(img)
	b := Preprocess(img)

	if len(a.Pix) != len(b.Pix) {
		t.Fatalf("pix length mismatch: %d vs %d", len(a.Pix), len(b.Pix))
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatalf("pixel %d differs: %d vs %d", i, a.Pix[i], b.Pix[i])
		}
	}
}

func TestEstimateSkewSkipsSparseForeground(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	// 50 foreground pixels, under the 100-pixel minimum
	for i := 0; i < 50; i++ {
		img.SetGray(i, 50, color.Gray{Y: 0})
	}

	if _, ok := estimateSkew(img); ok {
		t.Fatal("expected deskew to be skipped for sparse foreground")
	}
}

func TestEstimateSkewAxisAlignedBlock(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 200))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for y := 80; y < 120; y++ {
		for x := 20; x < 180; x++ {
			img.SetGray(x, y, color.Gray{Y: 0})
		}
	}

	angle, ok := estimateSkew(img)
	if !ok {
		t.Fatal("expected skew estimate for dense block")
	}
	if angle < -0.51 || angle > 0.51 {
		t.Fatalf("axis-aligned block should need no rotation, got %.2f degrees", angle)
	}
}

func TestNormalizedAngleRange(t *testing.T) {
	pts := []image.Point{{0, 0}, {100, 3}, {100, 23}, {0, 20}}
	angle := minAreaRectAngle(pts)
	if angle < -90 || angle >= 0 {
		t.Fatalf("raw rect angle %.2f outside [-90, 0)", angle)
	}
}

func TestCubicInterpReproducesKnots(t *testing.T) {
	p := [4]float64{10, 20, 30, 40}
	if got := cubicInterp(p, 0); got != 20 {
		t.Fatalf("t=0: got %.2f, want 20", got)
	}
	if got := cubicInterp(p, 1); got != 30 {
		t.Fatalf("t=1: got %.2f, want 30", got)
	}
}
