package annotation

// Thirds splits total questions into three contiguous bands. The remainder
// goes to the leading bands.
func Thirds(total int) (first, second, third int) {
	base, rem := total/3, total%3
	first, second, third = base, base, base
	if rem > 0 {
		first++
	}
	if rem > 1 {
		second++
	}
	return first, second, third
}

// PointsForIndex is the score of the question at 1-based position index:
// 3 in the first band, 4 in the second and 5 in the last.
func PointsForIndex(total, index int) int {
	f, s, _ := Thirds(total)
	switch {
	case index <= f:
		return 3
	case index <= f+s:
		return 4
	default:
		return 5
	}
}
