package diag

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"nrconv/pkg/contract"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown     Code = "unknown"
	CodeFormat      Code = "format"
	CodeAlignment   Code = "alignment"
	CodeConvergence Code = "convergence"
	CodeSchema      Code = "schema"
	CodeInvariant   Code = "invariant"
	CodeCancel      Code = "cancel"
	CodeIO          Code = "io"
)

// Classify 将错误归为最小分类。
// 仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	// 取消/超时优先
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	switch {
	case errors.Is(err, contract.ErrFormat):
		return CodeFormat
	case errors.Is(err, contract.ErrAlignment):
		return CodeAlignment
	case errors.Is(err, contract.ErrConvergenceSearch):
		return CodeConvergence
	case errors.Is(err, contract.ErrSchemaMismatch):
		return CodeSchema
	case errors.Is(err, contract.ErrInvariantViolation), errors.Is(err, contract.ErrPathInvalid):
		return CodeInvariant
	}
	var perr *os.PathError
	if errors.As(err, &perr) || errors.Is(err, fs.ErrNotExist) {
		return CodeIO
	}
	return CodeUnknown
}
