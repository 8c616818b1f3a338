package contract

// FileID: 逻辑数据文件 ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// FieldKind: 文件声明的场类型。
type FieldKind string

const (
	// KindAuto: 由文件首行数据列的宽度决定。
	KindAuto   FieldKind = ""
	KindScalar FieldKind = "scalar"
	KindTensor FieldKind = "tensor"
)

// TensorWidth: 对称 3×3 张量展平后的分量个数 [xx,xy,xz,yy,yz,zz]。
const TensorWidth = 6

// GridIndex: 离散格点 (ix, iy, iz)。去除 ghost 点后在单个快照内唯一。
type GridIndex [3]int

// ValueTag 区分列值是单个数还是定长向量。
type ValueTag uint8

const (
	TagScalar ValueTag = iota
	TagVector
)

// Value: 列值的显式标签联合。下游一律按 Tag 分支，不按长度推断。
type Value struct {
	Tag    ValueTag
	Scalar float64
	Vector []float64
}

// ScalarValue 构造标量值。
func ScalarValue(v float64) Value { return Value{Tag: TagScalar, Scalar: v} }

// VectorValue 构造向量值（拷贝输入）。
func VectorValue(v []float64) Value {
	out := make([]float64, len(v))
	copy(out, v)
	return Value{Tag: TagVector, Vector: out}
}

// IsScalar 报告是否为标量。
func (v Value) IsScalar() bool { return v.Tag == TagScalar }

// Components 以切片形式返回全部分量（标量为单元素）。
func (v Value) Components() []float64 {
	if v.Tag == TagScalar {
		return []float64{v.Scalar}
	}
	return v.Vector
}

// Record: 单个物理采样。
type Record struct {
	Iteration       int
	TimeLevel       int
	RefinementLevel int
	Component       int
	MultigridLevel  int
	Index           GridIndex
	Time            float64
	// Position: 1..3 个物理坐标分量。
	Position []float64
	Field    Value
}

// Block: 一个迭代块的原始行（已去注释、按 \t 切列）。
type Block struct {
	// Index: 非空块中的序号（0..n-1）。
	Index int
	Rows  [][]string
	// Lines: 每行在源文件中的行号（1 起）。
	Lines []int
}

// Snapshot: 同一迭代的有序记录；GridIndex 唯一，位置与 GridIndex 一一对应。
type Snapshot struct {
	Iteration int
	Time      float64
	Records   []Record
}

// Len 返回记录数。
func (s Snapshot) Len() int { return len(s.Records) }

// Dataset: 单个运行（单个文件）的快照序列，按迭代非递减排列。
type Dataset struct {
	Source    FileID
	Kind      FieldKind
	Snapshots []Snapshot
}

// Len 返回快照数。
func (d Dataset) Len() int { return len(d.Snapshots) }
