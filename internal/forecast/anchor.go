package forecast

// Anchor shifts curve by a constant so that its first value equals last.
// Anchoring an anchored curve is a no-op.
func Anchor(curve []float64, last float64) []float64 {
	out := make([]float64, len(curve))
	if len(curve) == 0 {
		return out
	}
	offset := last - curve[0]
	for i, c := range curve {
		out[i] = c + offset
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
