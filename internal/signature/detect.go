package signature

import (
	"image"
	"sort"
)

// DetectorParams controls the face-region detector. Identical parameters and
// identical input bytes always yield identical regions.
type DetectorParams struct {
	// MinAreaFrac is the minimum component area as a fraction of the image.
	MinAreaFrac float64
	// MinSide is the minimum bounding-box side in pixels.
	MinSide int
	// MinAspect and MaxAspect bound the width/height ratio of a candidate.
	MinAspect float64
	MaxAspect float64
}

// DefaultDetectorParams returns the detector tuning used in production.
func DefaultDetectorParams() DetectorParams {
	return DetectorParams{
		MinAreaFrac: 0.005,
		MinSide:     20,
		MinAspect:   0.4,
		MaxAspect:   2.0,
	}
}

// DetectFaces finds candidate face regions as connected components of
// skin-tone pixels. Components are filtered by area, size and aspect ratio,
// and returned sorted top-to-bottom, left-to-right.
func DetectFaces(img image.Image, p DetectorParams) []image.Rectangle {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil
	}

	mask := buildSkinMask(img)
	minArea := int(p.MinAreaFrac * float64(width*height))

	var regions []image.Rectangle
	visited := make([]bool, width*height)

	for y := range height {
		for x := range width {
			idx := y*width + x
			if visited[idx] || !mask[idx] {
				continue
			}

			box, area := floodFill(mask, visited, width, height, x, y)
			if area < minArea {
				continue
			}
			if box.Dx() < p.MinSide || box.Dy() < p.MinSide {
				continue
			}
			aspect := float64(box.Dx()) / float64(box.Dy())
			if aspect < p.MinAspect || aspect > p.MaxAspect {
				continue
			}

			regions = append(regions, box.Add(bounds.Min))
		}
	}

	sort.Slice(regions, func(i, j int) bool {
		if regions[i].Min.Y != regions[j].Min.Y {
			return regions[i].Min.Y < regions[j].Min.Y
		}
		return regions[i].Min.X < regions[j].Min.X
	})

	return regions
}

// buildSkinMask classifies every pixel as skin-tone or not.
func buildSkinMask(img image.Image) []bool {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	mask := make([]bool, width*height)
	for y := range height {
		for x := range width {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			mask[y*width+x] = isSkinTone(uint8(r>>8), uint8(g>>8), uint8(b>>8))
		}
	}
	return mask
}

// isSkinTone applies the Peer et al. RGB skin classification rule.
func isSkinTone(r, g, b uint8) bool {
	if r <= 95 || g <= 40 || b <= 20 {
		return false
	}
	maxC := max(r, g, b)
	minC := min(r, g, b)
	if maxC-minC <= 15 {
		return false
	}
	diff := int(r) - int(g)
	if diff < 0 {
		diff = -diff
	}
	return diff > 15 && r > g && r > b
}

// floodFill marks the 8-connected component containing (sx, sy) as visited
// and returns its bounding box (relative to the mask origin) and pixel count.
func floodFill(mask, visited []bool, width, height, sx, sy int) (image.Rectangle, int) {
	stack := []image.Point{{X: sx, Y: sy}}
	visited[sy*width+sx] = true

	minX, minY, maxX, maxY := sx, sy, sx, sy
	area := 0

	for len(stack) > 0 {
		pt := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		area++

		minX = min(minX, pt.X)
		minY = min(minY, pt.Y)
		maxX = max(maxX, pt.X)
		maxY = max(maxY, pt.Y)

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				nx, ny := pt.X+dx, pt.Y+dy
				if nx < 0 || ny < 0 || nx >= width || ny >= height {
					continue
				}
				idx := ny*width + nx
				if visited[idx] || !mask[idx] {
					continue
				}
				visited[idx] = true
				stack = append(stack, image.Point{X: nx, Y: ny})
			}
		}
	}

	return image.Rect(minX, minY, maxX+1, maxY+1), area
}
