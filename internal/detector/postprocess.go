package detector

import (
	"image"
	"strconv"
)

// detectionRowSize is the width of an SSD DetectionOutput row:
// [image_id, label, conf, x_min, y_min, x_max, y_max].
const detectionRowSize = 7

// decode parses an SSD-style [1, 1, N, 7] output into detections scaled to
// frameSize. A row with a negative image_id ends the list. Only detections
// whose confidence exceeds cfg.ProbThreshold are kept.
func decode(out Tensor, frameSize image.Point, cfg Config) Result {
	var res Result
	bounds := image.Rect(0, 0, frameSize.X, frameSize.Y)

	for i := 0; i+detectionRowSize <= len(out.Data); i += detectionRowSize {
		row := out.Data[i : i+detectionRowSize]
		if row[0] < 0 {
			break
		}

		conf := row[2]
		if conf <= cfg.ProbThreshold {
			continue
		}

		classID := int(row[1])
		box := image.Rect(
			int(row[3]*float32(frameSize.X)),
			int(row[4]*float32(frameSize.Y)),
			int(row[5]*float32(frameSize.X)),
			int(row[6]*float32(frameSize.Y)),
		).Intersect(bounds)

		d := Detection{
			ClassID:    classID,
			Label:      labelFor(cfg.Labels, classID),
			Confidence: conf,
			Box:        box,
			Target:     cfg.IsTarget(classID),
		}
		if d.Target {
			res.Qualifying = true
		}
		res.Detections = append(res.Detections, d)
	}

	return res
}

func labelFor(labels []string, classID int) string {
	if classID >= 0 && classID < len(labels) && labels[classID] != "" {
		return labels[classID]
	}
	return strconv.Itoa(classID)
}
