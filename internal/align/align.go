// Package align 将同一物理量的多分辨率采样限制到最粗分辨率的坐标集上。
package align

import (
	"fmt"
	"math"
	"sort"

	"nrconv/internal/grid"
	"nrconv/pkg/contract"
)

// DefaultEpsilon: 位置匹配容差（逐分量最大绝对差）。
const DefaultEpsilon = 1e-14

// Resolution: 单一分辨率在选定时刻的剖面。
type Resolution struct {
	Source    contract.FileID
	H         float64
	Positions [][]float64
	Values    []float64
}

// Len 返回点数。
func (r Resolution) Len() int { return len(r.Values) }

// Aligned: 对齐后的分辨率；Positions 与参考分辨率逐点相同、同序。
type Aligned struct {
	Source    contract.FileID
	H         float64
	Positions [][]float64
	Values    []float64
}

// Domain: 轴坐标的闭区间 [Min, Max]。
type Domain struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Options: 对齐参数。
type Options struct {
	Epsilon float64
	Axis    int
	// Domain 非空时先剔除轴坐标越界的点（边界点）。
	Domain *Domain
}

// SortCoarsestFirst 按 h 严格递减排序；reordered 报告输入顺序是否被修正。
// 两个分辨率 h 相同（相对 1e-12）时返回 AlignmentError。
func SortCoarsestFirst(rs []Resolution) ([]Resolution, bool, error) {
	out := append([]Resolution(nil), rs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].H > out[j].H })
	reordered := false
	for i := range out {
		if out[i].Source != rs[i].Source || out[i].H != rs[i].H {
			reordered = true
		}
		if i == 0 {
			continue
		}
		a, b := out[i-1], out[i]
		if math.Abs(a.H-b.H) <= 1e-12*math.Max(math.Abs(a.H), math.Abs(b.H)) {
			return nil, false, &contract.AlignmentError{Resolution: b.Source, Reference: a.Source,
				Reason: fmt.Sprintf("equal grid spacing %.17g", b.H)}
		}
	}
	return out, reordered, nil
}

// RestrictDomain 丢弃轴坐标不在 [min, max] 内的点。
func RestrictDomain(r Resolution, axis int, min, max float64) (Resolution, error) {
	out := Resolution{Source: r.Source, H: r.H}
	for i, p := range r.Positions {
		if axis < 0 || axis >= len(p) {
			return Resolution{}, &contract.SchemaMismatchError{What: "axis", Detail: fmt.Sprintf("axis %d outside %d-component positions", axis, len(p))}
		}
		if p[axis] < min || p[axis] > max {
			continue
		}
		out.Positions = append(out.Positions, p)
		out.Values = append(out.Values, r.Values[i])
	}
	return out, nil
}

// Align 以 rs[0]（最粗）为参考：较细分辨率仅保留与参考位置匹配（ε 内）的点，
// 并按参考顺序输出。rs 须已按 SortCoarsestFirst 排好。
// 任一分辨率匹配点数与参考不同即返回 AlignmentError。
func Align(rs []Resolution, opts Options) ([]Aligned, error) {
	if len(rs) == 0 {
		return nil, &contract.AlignmentError{Reason: "no resolutions"}
	}
	eps := opts.Epsilon
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	work := make([]Resolution, len(rs))
	for i, r := range rs {
		if len(r.Positions) != len(r.Values) {
			return nil, &contract.AlignmentError{Resolution: r.Source, Reason: fmt.Sprintf("%d positions for %d values", len(r.Positions), len(r.Values))}
		}
		if i > 0 && !(r.H < rs[i-1].H) {
			return nil, &contract.AlignmentError{Resolution: r.Source, Reference: rs[i-1].Source, Reason: "resolutions not ordered coarsest-first"}
		}
		if opts.Domain != nil {
			var err error
			if r, err = RestrictDomain(r, opts.Axis, opts.Domain.Min, opts.Domain.Max); err != nil {
				return nil, err
			}
		}
		work[i] = r
	}

	ref := work[0]
	if ref.Len() == 0 {
		return nil, &contract.AlignmentError{Resolution: ref.Source, Reference: ref.Source, Reason: "reference has no points in domain"}
	}
	out := make([]Aligned, 0, len(work))
	out = append(out, Aligned{Source: ref.Source, H: ref.H, Positions: ref.Positions, Values: contract.CloneFloats(ref.Values)})
	for _, r := range work[1:] {
		a, err := match(ref, r, opts.Axis, eps)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// match 在 r 中按轴坐标二分查找每个参考点的对应点。
func match(ref, r Resolution, axis int, eps float64) (Aligned, error) {
	order := make([]int, r.Len())
	for i := range order {
		if axis < 0 || axis >= len(r.Positions[i]) {
			return Aligned{}, &contract.SchemaMismatchError{What: "axis", Detail: fmt.Sprintf("axis %d outside %d-component positions", axis, len(r.Positions[i]))}
		}
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return r.Positions[order[a]][axis] < r.Positions[order[b]][axis] })

	a := Aligned{Source: r.Source, H: r.H}
	for _, p := range ref.Positions {
		if axis >= len(p) {
			return Aligned{}, &contract.SchemaMismatchError{What: "axis", Detail: fmt.Sprintf("axis %d outside %d-component positions", axis, len(p))}
		}
		lo := p[axis] - eps
		k := sort.Search(len(order), func(k int) bool { return r.Positions[order[k]][axis] >= lo })
		for ; k < len(order) && r.Positions[order[k]][axis] <= p[axis]+eps; k++ {
			if grid.SamePosition(r.Positions[order[k]], p, eps) {
				a.Positions = append(a.Positions, p)
				a.Values = append(a.Values, r.Values[order[k]])
				break
			}
		}
	}
	if len(a.Values) != ref.Len() {
		return Aligned{}, &contract.AlignmentError{Resolution: r.Source, Reference: ref.Source, Want: ref.Len(), Got: len(a.Values)}
	}
	return a, nil
}
