package nn

import (
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
)

// Normalized boxes are indexed on a fixed-point grid
const nmsGrid = 1 << 16

// Postprocess filters raw engine output: drop anything below the probability threshold,
// suppress overlapping boxes of the same class, and keep at most MaxResults.
// The output is sorted by descending confidence. The input slice is not modified.
func Postprocess(raw []RawDetection, params *DetectionParams) []RawDetection {
	p := params.WithDefaults()

	candidates := make([]RawDetection, 0, len(raw))
	for _, r := range raw {
		if r.Confidence >= p.ProbabilityThreshold {
			candidates = append(candidates, r)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	kept := NonMaxSuppression(candidates, p.NmsIouThreshold)
	if len(kept) > p.MaxResults {
		kept = kept[:p.MaxResults]
	}
	return kept
}

// NonMaxSuppression expects dets to be sorted by descending confidence.
// A box is dropped if it overlaps a more confident box of the same label
// by more than iouThreshold.
func NonMaxSuppression(dets []RawDetection, iouThreshold float32) []RawDetection {
	if len(dets) < 2 {
		return append([]RawDetection{}, dets...)
	}

	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(dets))
	for _, d := range dets {
		x1, y1, x2, y2 := d.Box.Scale(nmsGrid, nmsGrid).Bounds()
		fb.Add(x1, y1, x2, y2)
	}
	fb.Finish()

	suppressed := make([]bool, len(dets))
	out := []RawDetection{}
	for i := range dets {
		if suppressed[i] {
			continue
		}
		out = append(out, dets[i])
		x1, y1, x2, y2 := dets[i].Box.Scale(nmsGrid, nmsGrid).Bounds()
		for _, j := range fb.Search(x1, y1, x2, y2) {
			if j <= i || suppressed[j] || dets[j].Label != dets[i].Label {
				continue
			}
			if dets[i].Box.IOU(dets[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return out
}
