package contract

import (
	"errors"
	"fmt"
)

// 最小错误分类（哨兵）；具体错误类型通过 Is 归入对应哨兵。
var (
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrFormat: 块/行结构不合法。
	ErrFormat = errors.New("format error")
	// ErrAlignment: 多分辨率对齐后点数不一致。
	ErrAlignment = errors.New("alignment error")
	// ErrConvergenceSearch: 收敛阶搜索未在预算内达到容差。
	ErrConvergenceSearch = errors.New("convergence search error")
	// ErrSchemaMismatch: 请求的张量下标/时间/迭代在数据中不存在。
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// FormatError: 文件内的结构错误，带文件名与块序号。
type FormatError struct {
	File   FileID
	Block  int
	Line   int
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	loc := fmt.Sprintf("%s block=%d", e.File, e.Block)
	if e.Line > 0 {
		loc += fmt.Sprintf(" line=%d", e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("format error: %s: %s: %v", loc, e.Reason, e.Err)
	}
	return fmt.Sprintf("format error: %s: %s", loc, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// ColumnCountError: 列数或数据列宽度与声明的场类型不符。
type ColumnCountError struct {
	File  FileID
	Block int
	Line  int
	Kind  FieldKind
	// What: "columns" 或具体列名（如 "field"）。
	What string
	Got  int
	Want int
}

func (e *ColumnCountError) Error() string {
	return fmt.Sprintf("format error: %s block=%d line=%d: %s kind=%s %s count %d, want %d",
		e.File, e.Block, e.Line, "column count mismatch", e.Kind, e.What, e.Got, e.Want)
}

func (e *ColumnCountError) Is(target error) bool { return target == ErrFormat }

// AlignmentError: 对齐后某分辨率的点数与参考（最粗）分辨率不符。
type AlignmentError struct {
	Resolution FileID
	Reference  FileID
	Want       int
	Got        int
	Reason     string
}

func (e *AlignmentError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("alignment error: %s vs %s: %s", e.Resolution, e.Reference, e.Reason)
	}
	return fmt.Sprintf("alignment error: %s vs %s: matched %d points, want %d", e.Resolution, e.Reference, e.Got, e.Want)
}

func (e *AlignmentError) Is(target error) bool { return target == ErrAlignment }

// ConvergenceSearchError: 携带最后一次候选阶数与残差，便于调用方决定是否放宽区间重试。
type ConvergenceSearchError struct {
	Order      float64
	Residual   float64
	Iterations int
	Tolerance  float64
	Reason     string
	Err        error
}

func (e *ConvergenceSearchError) Error() string {
	msg := fmt.Sprintf("convergence search error: order=%.6g residual=%.3g tolerance=%.3g iterations=%d",
		e.Order, e.Residual, e.Tolerance, e.Iterations)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConvergenceSearchError) Unwrap() error { return e.Err }

func (e *ConvergenceSearchError) Is(target error) bool { return target == ErrConvergenceSearch }

// SchemaMismatchError: 请求的时间/迭代/分量在数据集中不存在。
type SchemaMismatchError struct {
	What   string
	Detail string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: %s: %s", e.What, e.Detail)
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

// IndexError: 张量下标超出 {0,1,2}。
type IndexError struct {
	I, J int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("schema mismatch: tensor index (%d,%d) outside {0,1,2}", e.I, e.J)
}

func (e *IndexError) Is(target error) bool { return target == ErrSchemaMismatch }
