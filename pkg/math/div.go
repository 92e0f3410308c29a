package math

import "golang.org/x/exp/constraints"

func DivRoundUp[T constraints.Integer](a, b T) T {
	if a%b == 0 {
		return a / b
	}
	return a/b + 1
}

// AlignUp rounds `a` up to the nearest multiple of `b`.
func AlignUp[T constraints.Integer](a, b T) T {
	return DivRoundUp(a, b) * b
}

func Pow[T constraints.Integer](base T, exp int) T {
	out := T(1)
	for i := 0; i < exp; i++ {
		out *= base
	}
	return out
}
