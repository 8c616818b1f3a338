// Package grid 提供 Dataset/Snapshot 的只读查询（按迭代、时间、格点下标与位置）。
package grid

import (
	"fmt"
	"math"
	"sort"

	"nrconv/internal/tensor"
	"nrconv/pkg/contract"
)

// SnapshotAtIteration 返回首个迭代号为 it 的快照。
func SnapshotAtIteration(ds contract.Dataset, it int) (contract.Snapshot, error) {
	i := sort.Search(len(ds.Snapshots), func(i int) bool { return ds.Snapshots[i].Iteration >= it })
	if i < len(ds.Snapshots) && ds.Snapshots[i].Iteration == it {
		return ds.Snapshots[i], nil
	}
	return contract.Snapshot{}, &contract.SchemaMismatchError{What: "iteration", Detail: fmt.Sprintf("%d not present in %s", it, ds.Source)}
}

// SnapshotAtTime 返回首个 |Time-t| <= tol 的快照（绝对容差）。
func SnapshotAtTime(ds contract.Dataset, t, tol float64) (contract.Snapshot, error) {
	for _, s := range ds.Snapshots {
		if math.Abs(s.Time-t) <= tol {
			return s, nil
		}
	}
	return contract.Snapshot{}, &contract.SchemaMismatchError{What: "time", Detail: fmt.Sprintf("%.17g not present in %s", t, ds.Source)}
}

// Times 按快照顺序返回去重后的坐标时间。
func Times(ds contract.Dataset) []float64 {
	out := make([]float64, 0, len(ds.Snapshots))
	for _, s := range ds.Snapshots {
		if n := len(out); n > 0 && out[n-1] == s.Time {
			continue
		}
		out = append(out, s.Time)
	}
	return out
}

// Profile: 某一时刻沿坐标轴的分量剖面，按轴坐标升序。
type Profile struct {
	Time      float64
	Positions [][]float64
	Coords    []float64
	Values    []float64
}

// Len 返回点数。
func (p Profile) Len() int { return len(p.Values) }

// SnapshotProfile 提取快照中 comp 分量沿 axis 的剖面。
func SnapshotProfile(s contract.Snapshot, comp tensor.Component, axis int) (Profile, error) {
	p := Profile{Time: s.Time}
	type pt struct {
		pos []float64
		v   float64
	}
	pts := make([]pt, 0, len(s.Records))
	for _, r := range s.Records {
		if axis < 0 || axis >= len(r.Position) {
			return Profile{}, &contract.SchemaMismatchError{What: "axis", Detail: fmt.Sprintf("axis %d outside %d-component positions", axis, len(r.Position))}
		}
		v, err := comp.Of(r.Field)
		if err != nil {
			return Profile{}, err
		}
		pts = append(pts, pt{pos: r.Position, v: v})
	}
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].pos[axis] < pts[j].pos[axis] })
	for _, q := range pts {
		p.Positions = append(p.Positions, contract.CloneFloats(q.pos))
		p.Coords = append(p.Coords, q.pos[axis])
		p.Values = append(p.Values, q.v)
	}
	return p, nil
}

// ProfileAtTime = SnapshotAtTime + SnapshotProfile。
func ProfileAtTime(ds contract.Dataset, t, tol float64, comp tensor.Component, axis int) (Profile, error) {
	s, err := SnapshotAtTime(ds, t, tol)
	if err != nil {
		return Profile{}, err
	}
	return SnapshotProfile(s, comp, axis)
}

// History: 单个格点的分量随时间变化。
type History struct {
	Index  contract.GridIndex
	Times  []float64
	Values []float64
}

// HistoryAtPoint 在每个快照中按 GridIndex 取值；任一快照缺该点即失败。
func HistoryAtPoint(ds contract.Dataset, idx contract.GridIndex, comp tensor.Component) (History, error) {
	h := History{Index: idx}
	for _, s := range ds.Snapshots {
		r, ok := PointByIndex(s, idx)
		if !ok {
			return History{}, &contract.SchemaMismatchError{What: "grid index", Detail: fmt.Sprintf("%v missing at iteration %d", idx, s.Iteration)}
		}
		v, err := comp.Of(r.Field)
		if err != nil {
			return History{}, err
		}
		h.Times = append(h.Times, s.Time)
		h.Values = append(h.Values, v)
	}
	return h, nil
}

// PointByIndex 按格点下标查找记录。
func PointByIndex(s contract.Snapshot, idx contract.GridIndex) (contract.Record, bool) {
	for _, r := range s.Records {
		if r.Index == idx {
			return r, true
		}
	}
	return contract.Record{}, false
}

// PointByPosition 查找各分量差的最大绝对值不超过 eps 的首个记录。
func PointByPosition(s contract.Snapshot, pos []float64, eps float64) (contract.Record, bool) {
	for _, r := range s.Records {
		if SamePosition(r.Position, pos, eps) {
			return r, true
		}
	}
	return contract.Record{}, false
}

// SamePosition: 维数相同且逐分量 |a-b| <= eps。
func SamePosition(a, b []float64, eps float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}
