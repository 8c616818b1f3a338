package contract

import (
	"context"
	"time"
)

// RunSummary: 一次收敛分析的摘要，供 Ledger 持久化。
type RunSummary struct {
	ID         string
	CreatedAt  time.Time
	Time       float64
	Component  string
	Order      float64
	Residual   float64
	Iterations int
	Points     int
	Files      []FileID
	Spacings   []float64
}

// Ledger: 分析历史记录（可选组件）。
type Ledger interface {
	Record(ctx context.Context, s RunSummary) error
	Recent(ctx context.Context, limit int) ([]RunSummary, error)
	Close() error
}
