package gen

func Abs[T Integer | Float](a T) T {
	if a < 0 {
		return -a
	}
	return a
}

// Sign returns -1, 0, or 1
func Sign[T Integer | Float](a T) T {
	if a < 0 {
		return -1
	} else if a > 0 {
		return 1
	}
	return 0
}

func Clamp[T Ordered](v, min, max T) T {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
