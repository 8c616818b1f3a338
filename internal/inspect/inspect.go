// Package inspect 汇总运行级别的信息：共同输出时刻与崩溃时刻。
package inspect

import (
	"fmt"
	"math"
	"sort"

	"nrconv/internal/grid"
	"nrconv/pkg/contract"
)

// CommonTimes 返回所有数据集共有的坐标时间（升序）。容差 tol 内视为同一时刻。
func CommonTimes(datasets []contract.Dataset, tol float64) []float64 {
	if len(datasets) == 0 {
		return nil
	}
	common := grid.Times(datasets[0])
	sort.Float64s(common)
	for _, ds := range datasets[1:] {
		ts := grid.Times(ds)
		sort.Float64s(ts)
		var keep []float64
		for _, t := range common {
			i := sort.SearchFloat64s(ts, t-tol)
			if i < len(ts) && math.Abs(ts[i]-t) <= tol {
				keep = append(keep, t)
			}
		}
		common = keep
	}
	return common
}

// Crash: 崩溃检测结果。
type Crash struct {
	Source contract.FileID
	// Time: 首个含非有限值快照之前一个快照的时间；全程有限时为最后时间。
	Time float64
	// Crashed: 是否发现非有限值。
	Crashed   bool
	Iteration int
}

// CrashTime 查找首个含 NaN/Inf 的快照，返回其前一个快照的时刻。
// 首个快照即含非有限值时返回 SchemaMismatchError。
func CrashTime(ds contract.Dataset) (Crash, error) {
	if ds.Len() == 0 {
		return Crash{}, &contract.SchemaMismatchError{What: "crash", Detail: fmt.Sprintf("%s has no snapshots", ds.Source)}
	}
	for i, s := range ds.Snapshots {
		if !bad(s) {
			continue
		}
		if i == 0 {
			return Crash{}, &contract.SchemaMismatchError{What: "crash", Detail: fmt.Sprintf("%s is non-finite at its first snapshot", ds.Source)}
		}
		prev := ds.Snapshots[i-1]
		return Crash{Source: ds.Source, Time: prev.Time, Iteration: prev.Iteration, Crashed: true}, nil
	}
	last := ds.Snapshots[ds.Len()-1]
	return Crash{Source: ds.Source, Time: last.Time, Iteration: last.Iteration}, nil
}

func bad(s contract.Snapshot) bool {
	for _, r := range s.Records {
		for _, v := range r.Field.Components() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	return false
}
