// Package lattice 估计格点间距。
//
// Spacing 假设局部均匀的笛卡尔网格：取快照前两个记录位置差的 2-范数作为代表性 h。
// 自适应网格或多 patch 网格需先在外部验证，不能直接套用。
package lattice

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"nrconv/pkg/contract"
)

// Spacing 返回前两个记录的位置距离。
func Spacing(s contract.Snapshot) (float64, error) {
	if len(s.Records) < 2 {
		return 0, &contract.SchemaMismatchError{What: "spacing", Detail: fmt.Sprintf("iteration %d has %d records, need 2", s.Iteration, len(s.Records))}
	}
	a, b := s.Records[0].Position, s.Records[1].Position
	if len(a) != len(b) || len(a) == 0 {
		return 0, &contract.SchemaMismatchError{What: "spacing", Detail: "position dimensions differ"}
	}
	h := floats.Distance(a, b, 2)
	if h == 0 {
		return 0, &contract.SchemaMismatchError{What: "spacing", Detail: fmt.Sprintf("iteration %d: first two records share a position", s.Iteration)}
	}
	return h, nil
}

// LocalSpacing: 单个坐标处的局部间距。
type LocalSpacing struct {
	Coord float64
	H     float64
}

// SpacingMap 对去重排序后的坐标求局部间距：
// 首点前向差分，末点后向差分，内部中心差分 |x[i+1]-x[i-1]|/2。
func SpacingMap(coords []float64) ([]LocalSpacing, error) {
	xs := contract.CloneFloats(coords)
	sort.Float64s(xs)
	xs = dedup(xs)
	if len(xs) < 2 {
		return nil, &contract.SchemaMismatchError{What: "spacing", Detail: fmt.Sprintf("%d distinct coordinates, need 2", len(xs))}
	}
	n := len(xs)
	out := make([]LocalSpacing, n)
	for i, x := range xs {
		var h float64
		switch i {
		case 0:
			h = xs[1] - xs[0]
		case n - 1:
			h = xs[n-1] - xs[n-2]
		default:
			h = (xs[i+1] - xs[i-1]) / 2
		}
		out[i] = LocalSpacing{Coord: x, H: h}
	}
	return out, nil
}

func dedup(xs []float64) []float64 {
	out := xs[:0]
	for i, x := range xs {
		if i > 0 && x == xs[i-1] {
			continue
		}
		out = append(out, x)
	}
	return out
}

// SnapshotSpacingMap 对快照沿 axis 的坐标求局部间距。
func SnapshotSpacingMap(s contract.Snapshot, axis int) ([]LocalSpacing, error) {
	coords := make([]float64, 0, len(s.Records))
	for _, r := range s.Records {
		if axis < 0 || axis >= len(r.Position) {
			return nil, &contract.SchemaMismatchError{What: "axis", Detail: fmt.Sprintf("axis %d outside %d-component positions", axis, len(r.Position))}
		}
		coords = append(coords, r.Position[axis])
	}
	return SpacingMap(coords)
}

// DatasetSpacingMaps 逐快照求间距图。
func DatasetSpacingMaps(ds contract.Dataset, axis int) ([][]LocalSpacing, error) {
	out := make([][]LocalSpacing, 0, len(ds.Snapshots))
	for _, s := range ds.Snapshots {
		m, err := SnapshotSpacingMap(s, axis)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", s.Iteration, err)
		}
		out = append(out, m)
	}
	return out, nil
}
