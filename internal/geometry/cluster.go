package geometry

// Near reports whether two rectangles are within tolerance of each other:
// each is grown by half the tolerance and the closed results are tested for
// overlap, so a gap of exactly tolerance still counts as near.
func Near(a, b Rect, tolerance float64) bool {
	half := tolerance / 2
	return a.Expand(half).Intersects(b.Expand(half))
}

// ClusterRects repeatedly unions any two rectangles that are Near each other
// until no pair is left to merge. The result never covers less than the
// input and is a fixed point: clustering it again returns it unchanged.
func ClusterRects(rects []Rect, tolerance float64) []Rect {
	current := append([]Rect(nil), rects...)
	for {
		next, merged := clusterPass(current, tolerance)
		current = next
		if !merged {
			return current
		}
	}
}

func clusterPass(rects []Rect, tolerance float64) ([]Rect, bool) {
	used := make([]bool, len(rects))
	out := make([]Rect, 0, len(rects))
	mergedAny := false

	for i := range rects {
		if used[i] {
			continue
		}
		used[i] = true
		cluster := rects[i]

		for changed := true; changed; {
			changed = false
			for j := range rects {
				if used[j] || !Near(cluster, rects[j], tolerance) {
					continue
				}
				cluster = cluster.Union(rects[j])
				used[j] = true
				changed = true
				mergedAny = true
			}
		}
		out = append(out, cluster)
	}
	return out, mergedAny
}
