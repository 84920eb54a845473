package utils

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

func SubVec(a, b *mat.VecDense) *mat.VecDense {
	if a.Len() != b.Len() {
		panic("Two vectors should have the same length.")
	}

	ret := mat.NewVecDense(a.Len(), nil)
	ret.SubVec(a, b)

	return ret
}

func SSubVec(a, b *mat.VecDense) {
	a.SubVec(a, b)
}

func SAddVec(a, b *mat.VecDense) {
	a.AddVec(a, b)
}

func CloneVec(a *mat.VecDense) *mat.VecDense {
	ret := mat.NewVecDense(a.Len(), nil)
	ret.CopyVec(a)

	return ret
}

func ZeroVec(n int) *mat.VecDense {
	return mat.NewVecDense(n, nil)
}

func LEThan(a, b *mat.VecDense) bool {
	if a.Len() != b.Len() {
		panic("Two vectors should have the same length.")
	}

	for i := 0; i < a.Len(); i += 1 {
		if a.AtVec(i) > b.AtVec(i) {
			return false
		}
	}

	return true
}

func ToString(a *mat.VecDense) string {
	ret := "("
	for i := 0; i < a.Len(); i += 1 {
		if i > 0 {
			ret += ", "
		}
		ret += fmt.Sprintf("%g", a.AtVec(i))
	}

	return ret + ")"
}
