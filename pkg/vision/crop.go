package vision

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultCropPad is the margin in pixels added around the merged detection
// box before cropping, so the vision model sees some surrounding context.
const DefaultCropPad = 50

// UnionBox merges all detection boxes into a single enclosing box. The
// second return is false when there is nothing to merge.
func UnionBox(detections []Detection) ([4]float64, bool) {
	if len(detections) == 0 {
		return [4]float64{}, false
	}

	union := detections[0].Box
	for _, d := range detections[1:] {
		if d.Box[0] < union[0] {
			union[0] = d.Box[0]
		}
		if d.Box[1] < union[1] {
			union[1] = d.Box[1]
		}
		if d.Box[2] > union[2] {
			union[2] = d.Box[2]
		}
		if d.Box[3] > union[3] {
			union[3] = d.Box[3]
		}
	}

	return union, true
}

// CropPadded cuts the boxed region out of the photo with pad pixels of
// margin on every side, clamped to the image bounds, and returns the crop
// re-encoded as JPEG.
func CropPadded(photo []byte, box [4]float64, pad int) ([]byte, error) {
	decoded, err := imaging.Decode(bytes.NewReader(photo), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := decoded.Bounds()
	x1 := clampInt(int(box[0])-pad, 0, bounds.Dx())
	y1 := clampInt(int(box[1])-pad, 0, bounds.Dy())
	x2 := clampInt(int(box[2])+pad, 0, bounds.Dx())
	y2 := clampInt(int(box[3])+pad, 0, bounds.Dy())
	if x2 <= x1 || y2 <= y1 {
		return nil, fmt.Errorf("crop region is empty")
	}

	crop := imaging.Crop(decoded, image.Rect(x1, y1, x2, y2))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, crop, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}

	return buf.Bytes(), nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
