package detector

import (
	"fmt"
	"sort"

	"livedetect/internal/models"
)

// YOLOParams controls decoding of a YOLOv8 output tensor.
type YOLOParams struct {
	InputSize    int
	Confidence   float32
	NMSThreshold float32
	Labels       []string
}

type candidate struct {
	classID        int
	score          float32
	x1, y1, x2, y2 float32
}

// DecodeYOLOv8 turns the raw [1, 4+classes, boxes] output of a YOLOv8
// model into detections for a frame of frameW x frameH. The model input is
// assumed to be the frame stretched to InputSize x InputSize.
func DecodeYOLOv8(out []float32, rows, boxes, frameW, frameH int, p YOLOParams) []models.DetectionResult {
	classes := rows - 4
	if classes <= 0 || boxes <= 0 || len(out) < rows*boxes || p.InputSize <= 0 {
		return nil
	}

	sx := float32(frameW) / float32(p.InputSize)
	sy := float32(frameH) / float32(p.InputSize)

	var cands []candidate
	for i := 0; i < boxes; i++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < classes; c++ {
			if s := out[(4+c)*boxes+i]; s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || bestScore < p.Confidence {
			continue
		}

		cx, cy := out[i], out[boxes+i]
		w, h := out[2*boxes+i], out[3*boxes+i]
		cands = append(cands, candidate{
			classID: best,
			score:   bestScore,
			x1:      (cx - w/2) * sx,
			y1:      (cy - h/2) * sy,
			x2:      (cx + w/2) * sx,
			y2:      (cy + h/2) * sy,
		})
	}

	kept := nonMaxSuppression(cands, p.NMSThreshold)

	results := make([]models.DetectionResult, 0, len(kept))
	for _, c := range kept {
		results = append(results, models.DetectionResult{
			Label:      labelFor(c.classID, p.Labels),
			ClassID:    c.classID,
			Confidence: c.score,
			Box:        models.NormalizedBox(c.x1, c.y1, c.x2, c.y2, frameW, frameH),
		})
	}
	return results
}

// nonMaxSuppression keeps the highest scoring box of every overlapping
// group of the same class.
func nonMaxSuppression(cands []candidate, threshold float32) []candidate {
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })

	suppressed := make([]bool, len(cands))
	var kept []candidate
	for i := range cands {
		if suppressed[i] {
			continue
		}
		kept = append(kept, cands[i])
		for j := i + 1; j < len(cands); j++ {
			if !suppressed[j] && cands[j].classID == cands[i].classID && iou(cands[i], cands[j]) > threshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func iou(a, b candidate) float32 {
	ix1, iy1 := max(a.x1, b.x1), max(a.y1, b.y1)
	ix2, iy2 := min(a.x2, b.x2), min(a.y2, b.y2)

	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := (a.x2-a.x1)*(a.y2-a.y1) + (b.x2-b.x1)*(b.y2-b.y1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func labelFor(id int, labels []string) string {
	if id >= 0 && id < len(labels) {
		return labels[id]
	}
	return fmt.Sprintf("class %d", id)
}
