// Package compare 计算两个快照逐点的场差（同网格、同点序）。
package compare

import (
	"fmt"
	"math"

	"nrconv/internal/align"
	"nrconv/internal/grid"
	"nrconv/internal/tensor"
	"nrconv/pkg/contract"
)

// Options 为不可变的比较配置，按值传入。
type Options struct {
	// Abs: 输出 |Δ|。
	Abs bool
	// Component: 为空时张量取 6 个槽位中 |Δ| 的最大值，标量取 Δ。
	Component *tensor.Component
	// Epsilon: 同序号两点的位置容差；0 取 align.DefaultEpsilon。
	Epsilon float64
}

// Difference: 逐点差；位置取自第一个快照。
type Difference struct {
	IterationA, IterationB int
	TimeA, TimeB           float64
	Positions              [][]float64
	Values                 []float64
}

// Diff 逐点计算 a − b。点数不同或同序号点位置不符返回 AlignmentError。
func Diff(a, b contract.Snapshot, opts Options) (Difference, error) {
	out := Difference{IterationA: a.Iteration, IterationB: b.Iteration, TimeA: a.Time, TimeB: b.Time}
	if a.Len() != b.Len() {
		return Difference{}, &contract.AlignmentError{Want: a.Len(), Got: b.Len(),
			Reason: fmt.Sprintf("iteration %d has %d points, iteration %d has %d", a.Iteration, a.Len(), b.Iteration, b.Len())}
	}
	eps := opts.Epsilon
	if eps == 0 {
		eps = align.DefaultEpsilon
	}
	for i := range a.Records {
		ra, rb := a.Records[i], b.Records[i]
		if !grid.SamePosition(ra.Position, rb.Position, eps) {
			return Difference{}, &contract.AlignmentError{Want: a.Len(), Got: b.Len(),
				Reason: fmt.Sprintf("point %d at %v (iteration %d) vs %v (iteration %d)", i, ra.Position, a.Iteration, rb.Position, b.Iteration)}
		}
		v, err := delta(ra.Field, rb.Field, opts)
		if err != nil {
			return Difference{}, fmt.Errorf("point %d: %w", i, err)
		}
		out.Positions = append(out.Positions, contract.CloneFloats(ra.Position))
		out.Values = append(out.Values, v)
	}
	return out, nil
}

func delta(a, b contract.Value, opts Options) (float64, error) {
	if a.Tag != b.Tag {
		return 0, &contract.SchemaMismatchError{What: "field kind", Detail: "scalar compared with tensor"}
	}
	var d float64
	switch {
	case opts.Component != nil:
		x, err := opts.Component.Of(a)
		if err != nil {
			return 0, err
		}
		y, err := opts.Component.Of(b)
		if err != nil {
			return 0, err
		}
		d = x - y
	case a.IsScalar():
		d = a.Scalar - b.Scalar
	default:
		if len(a.Vector) != len(b.Vector) {
			return 0, &contract.SchemaMismatchError{What: "field width", Detail: fmt.Sprintf("%d vs %d", len(a.Vector), len(b.Vector))}
		}
		for k := range a.Vector {
			if m := math.Abs(a.Vector[k] - b.Vector[k]); m > d || math.IsNaN(m) {
				d = m
			}
		}
	}
	if opts.Abs {
		d = math.Abs(d)
	}
	return d, nil
}

// Extremum 选择归约方式。
type Extremum int

const (
	Max Extremum = iota
	Min
)

// ParseExtremum 解析 "max" / "min"。
func ParseExtremum(s string) (Extremum, error) {
	switch s {
	case "max":
		return Max, nil
	case "min":
		return Min, nil
	}
	return 0, fmt.Errorf("unknown extremum %q (want max|min)", s)
}

// Reduce 返回 values 的最大或最小值；空输入返回错误。
func Reduce(values []float64, e Extremum) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("reduce: no values")
	}
	best := values[0]
	for _, v := range values[1:] {
		if (e == Max && v > best) || (e == Min && v < best) || math.IsNaN(v) {
			best = v
		}
	}
	return best, nil
}
