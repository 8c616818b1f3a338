package contract

import "fmt"

// 校验库函数（纯函数，无 I/O）：
// - ValidateSnapshot: 单一迭代、GridIndex 唯一、位置与 GridIndex 一一对应
// - ValidateDataset:  迭代非递减，且每个快照均通过 ValidateSnapshot

// PositionKey: 位置向量的可比较键（最多 3 个分量）。
type PositionKey struct {
	N int
	V [3]float64
}

// KeyOf 构造位置键；超过 3 个分量时返回 false。
func KeyOf(pos []float64) (PositionKey, bool) {
	var k PositionKey
	if len(pos) == 0 || len(pos) > 3 {
		return k, false
	}
	k.N = len(pos)
	copy(k.V[:], pos)
	return k, true
}

// ValidateSnapshot 校验快照不变量。
func ValidateSnapshot(s Snapshot) error {
	seenIdx := make(map[GridIndex]struct{}, len(s.Records))
	seenPos := make(map[PositionKey]GridIndex, len(s.Records))
	for i, r := range s.Records {
		if r.Iteration != s.Iteration {
			return fmt.Errorf("%w: record %d iteration %d != snapshot iteration %d", ErrInvariantViolation, i, r.Iteration, s.Iteration)
		}
		if _, dup := seenIdx[r.Index]; dup {
			return fmt.Errorf("%w: duplicate grid index %v", ErrInvariantViolation, r.Index)
		}
		seenIdx[r.Index] = struct{}{}
		k, ok := KeyOf(r.Position)
		if !ok {
			return fmt.Errorf("%w: record %d has %d position components", ErrInvariantViolation, i, len(r.Position))
		}
		if prev, dup := seenPos[k]; dup {
			return fmt.Errorf("%w: position %v shared by grid indices %v and %v", ErrInvariantViolation, r.Position, prev, r.Index)
		}
		seenPos[k] = r.Index
	}
	return nil
}

// ValidateDataset 校验数据集不变量。
func ValidateDataset(d Dataset) error {
	for i, s := range d.Snapshots {
		if i > 0 && s.Iteration < d.Snapshots[i-1].Iteration {
			return fmt.Errorf("%w: snapshot %d iteration %d precedes %d", ErrInvariantViolation, i, s.Iteration, d.Snapshots[i-1].Iteration)
		}
		if err := ValidateSnapshot(s); err != nil {
			return fmt.Errorf("snapshot %d: %w", i, err)
		}
	}
	return nil
}

// CloneFloats 复制浮点切片，避免底层共享。
func CloneFloats(in []float64) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	copy(out, in)
	return out
}
