package snapshots

import (
	"context"
	"fmt"

	"nrconv/pkg/contract"
)

// Options: 预留占位，装配无需配置。
type Options struct{}

// Assembler: GhostPointFilter + SnapshotStore。
type Assembler struct{}

// New 创建装配器。
func New(*Options) *Assembler { return &Assembler{} }

var _ contract.Assembler = (*Assembler)(nil)

// FilterGhosts 保持文件顺序，丢弃已出现过的 GridIndex（保留首次出现）。幂等。
func FilterGhosts(records []contract.Record) []contract.Record {
	seen := make(map[contract.GridIndex]struct{}, len(records))
	out := make([]contract.Record, 0, len(records))
	for _, r := range records {
		if _, dup := seen[r.Index]; dup {
			continue
		}
		seen[r.Index] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Assemble 每块去 ghost 后构成一个快照；快照按迭代稳定插入，保证非递减。
func (a *Assembler) Assemble(ctx context.Context, fileID contract.FileID, blocks [][]contract.Record) (contract.Dataset, error) {
	ds := contract.Dataset{Source: fileID}
	var width int
	for bi, recs := range blocks {
		select {
		case <-ctx.Done():
			return contract.Dataset{}, ctx.Err()
		default:
		}
		if len(recs) == 0 {
			return contract.Dataset{}, &contract.FormatError{File: fileID, Block: bi, Reason: "block contains no records"}
		}
		kept := FilterGhosts(recs)
		for _, r := range kept {
			w := len(r.Field.Components())
			if ds.Kind == contract.KindAuto {
				ds.Kind, width = kindOf(r.Field), w
			}
			if kindOf(r.Field) != ds.Kind || w != width {
				return contract.Dataset{}, &contract.FormatError{File: fileID, Block: bi,
					Reason: fmt.Sprintf("field kind changes within file (%s, width %d)", kindOf(r.Field), w)}
			}
		}
		snap := contract.Snapshot{Iteration: kept[0].Iteration, Time: kept[0].Time, Records: kept}
		if err := contract.ValidateSnapshot(snap); err != nil {
			return contract.Dataset{}, &contract.FormatError{File: fileID, Block: bi, Reason: "snapshot invariant", Err: err}
		}
		ds.Snapshots = insertOrdered(ds.Snapshots, snap)
	}
	return ds, nil
}

func kindOf(v contract.Value) contract.FieldKind {
	if v.IsScalar() {
		return contract.KindScalar
	}
	return contract.KindTensor
}

// insertOrdered 插在最后一个迭代 <= s.Iteration 的快照之后（稳定）。
func insertOrdered(list []contract.Snapshot, s contract.Snapshot) []contract.Snapshot {
	i := len(list)
	for i > 0 && list[i-1].Iteration > s.Iteration {
		i--
	}
	list = append(list, contract.Snapshot{})
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}
