// Package preprocess normalizes raw book-page scans before character
// recognition: grayscale conversion, denoising, adaptive binarization for
// uneven lighting, and deskewing of rotated text.
package preprocess

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"sort"
)

const (
	denoiseStrength   = 10.0
	thresholdBlock    = 15
	thresholdC        = 11.0
	foregroundLimit   = 128
	minForegroundPix  = 100
	minRotationDegree = 0.5
)

// Preprocess converts a scanned page into a denoised, binarized and deskewed
// grayscale image ready for recognition. The function is pure and
// deterministic given identical input pixels.
func Preprocess(img image.Image) *image.Gray {
	gray := toGray(img)
	denoised := denoise(gray)
	binary := adaptiveThreshold(denoised)

	angle, ok := estimateSkew(binary)
	if ok && math.Abs(angle) > minRotationDegree {
		binary = rotate(binary, angle)
	}
	return binary
}

// toGray collapses color channels into single-channel luminance.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		out := image.NewGray(g.Bounds())
		copy(out.Pix, g.Pix)
		return out
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// denoise applies a non-local-means style filter: each pixel becomes a
// weighted average of search-window pixels, weighted by 3x3 patch
// similarity.
func denoise(src *image.Gray) *image.Gray {
	const (
		patchRadius  = 1
		searchRadius = 2
	)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(src.Rect)
	h2 := denoiseStrength * denoiseStrength

	patchDist := func(x1, y1, x2, y2 int) float64 {
		var d float64
		for dy := -patchRadius; dy <= patchRadius; dy++ {
			for dx := -patchRadius; dx <= patchRadius; dx++ {
				a := float64(pixelClamped(src, x1+dx, y1+dy))
				b := float64(pixelClamped(src, x2+dx, y2+dy))
				d += (a - b) * (a - b)
			}
		}
		return d / float64((2*patchRadius+1)*(2*patchRadius+1))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum, norm float64
			for sy := -searchRadius; sy <= searchRadius; sy++ {
				for sx := -searchRadius; sx <= searchRadius; sx++ {
					weight := math.Exp(-patchDist(x, y, x+sx, y+sy) / h2)
					sum += weight * float64(pixelClamped(src, x+sx, y+sy))
					norm += weight
				}
			}
			out.SetGray(x, y, grayValue(sum/norm))
		}
	}
	return out
}

// adaptiveThreshold binarizes with a Gaussian-weighted local mean over a
// thresholdBlock window minus a constant, which copes with the uneven
// lighting typical of physical-book scans.
func adaptiveThreshold(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	kernel := gaussianKernel(thresholdBlock)
	radius := thresholdBlock / 2

	// Separable Gaussian blur: horizontal pass, then vertical.
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float64
			for k := -radius; k <= radius; k++ {
				sum += kernel[k+radius] * float64(pixelClamped(src, x+k, y))
			}
			tmp[y*w+x] = sum
		}
	}

	out := image.NewGray(src.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var mean float64
			for k := -radius; k <= radius; k++ {
				yy := y + k
				if yy < 0 {
					yy = 0
				} else if yy >= h {
					yy = h - 1
				}
				mean += kernel[k+radius] * tmp[yy*w+x]
			}
			if float64(src.GrayAt(x, y).Y) > mean-thresholdC {
				out.SetGray(x, y, grayValue(255))
			} else {
				out.SetGray(x, y, grayValue(0))
			}
		}
	}
	return out
}

// estimateSkew computes the rotation angle of the text block from the
// minimum-area bounding rectangle over foreground (ink) pixels. Returns
// false when fewer than minForegroundPix foreground pixels exist.
func estimateSkew(binary *image.Gray) (float64, bool) {
	var points []image.Point
	w, h := binary.Rect.Dx(), binary.Rect.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if binary.GrayAt(x, y).Y < foregroundLimit {
				points = append(points, image.Pt(x, y))
			}
		}
	}
	if len(points) <= minForegroundPix {
		return 0, false
	}

	angle := minAreaRectAngle(points)
	if angle < -45 {
		angle += 90
	}
	return angle, true
}

// minAreaRectAngle returns the orientation in degrees, in [-90, 0), of the
// minimum-area rectangle enclosing the points (convex hull + rotating
// calipers).
func minAreaRectAngle(points []image.Point) float64 {
	hull := convexHull(points)
	if len(hull) < 3 {
		return -90
	}

	best := math.MaxFloat64
	bestAngle := 0.0
	for i := 0; i < len(hull); i++ {
		p1 := hull[i]
		p2 := hull[(i+1)%len(hull)]
		theta := math.Atan2(float64(p2.Y-p1.Y), float64(p2.X-p1.X))
		cos, sin := math.Cos(theta), math.Sin(theta)

		minU, maxU := math.MaxFloat64, -math.MaxFloat64
		minV, maxV := math.MaxFloat64, -math.MaxFloat64
		for _, p := range hull {
			u := cos*float64(p.X) + sin*float64(p.Y)
			v := -sin*float64(p.X) + cos*float64(p.Y)
			minU, maxU = math.Min(minU, u), math.Max(maxU, u)
			minV, maxV = math.Min(minV, v), math.Max(maxV, v)
		}
		area := (maxU - minU) * (maxV - minV)
		if area < best {
			best = area
			bestAngle = theta * 180 / math.Pi
		}
	}

	// Fold into [-90, 0) using the rectangle's 90-degree symmetry.
	a := math.Mod(bestAngle, 90)
	if a < 0 {
		a += 90
	}
	return a - 90
}

// convexHull computes the convex hull via Andrew's monotone chain.
func convexHull(points []image.Point) []image.Point {
	pts := make([]image.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].X != pts[j].X {
			return pts[i].X < pts[j].X
		}
		return pts[i].Y < pts[j].Y
	})

	cross := func(o, a, b image.Point) int {
		return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
	}

	var hull []image.Point
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	if len(hull) > 1 {
		hull = hull[:len(hull)-1]
	}
	return hull
}

// rotate turns the image about its center by angle degrees using bicubic
// interpolation with edge replication for out-of-bounds samples.
func rotate(src *image.Gray, angle float64) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(src.Rect)

	rad := angle * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	cx, cy := float64(w/2), float64(h/2)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Inverse mapping of the destination pixel.
			dx, dy := float64(x)-cx, float64(y)-cy
			srcX := cos*dx + sin*dy + cx
			srcY := -sin*dx + cos*dy + cy
			out.SetGray(x, y, grayValue(bicubicSample(src, srcX, srcY)))
		}
	}
	return out
}

// bicubicSample evaluates a Catmull-Rom cubic at a fractional coordinate,
// replicating edge pixels outside the image.
func bicubicSample(src *image.Gray, fx, fy float64) float64 {
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	var rows [4]float64
	for j := 0; j < 4; j++ {
		var cols [4]float64
		for i := 0; i < 4; i++ {
			cols[i] = float64(pixelClamped(src, x0-1+i, y0-1+j))
		}
		rows[j] = cubicInterp(cols, tx)
	}
	return cubicInterp(rows, ty)
}

func cubicInterp(p [4]float64, t float64) float64 {
	return p[1] + 0.5*t*(p[2]-p[0]+t*(2*p[0]-5*p[1]+4*p[2]-p[3]+t*(3*(p[1]-p[2])+p[3]-p[0])))
}

// gaussianKernel returns a normalized 1D kernel of the given odd size with
// the sigma convention used for adaptive thresholding.
func gaussianKernel(size int) []float64 {
	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	radius := size / 2
	kernel := make([]float64, size)
	var sum float64
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func grayValue(v float64) color.Gray {
	if v < 0 {
		v = 0
	} else if v > 255 {
		v = 255
	}
	return color.Gray{Y: uint8(math.Round(v))}
}

func pixelClamped(img *image.Gray, x, y int) uint8 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if x < 0 {
		x = 0
	} else if x >= w {
		x = w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= h {
		y = h - 1
	}
	return img.GrayAt(x, y).Y
}
