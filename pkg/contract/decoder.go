package contract

import "context"

// Decoder: 将一个 Block 的行按列类型解析为 Record。
// 约束：
// 1) 仅做严格数值字面量解析（整数/浮点），不做表达式求值；
// 2) 列数/数据列宽度不符返回 ColumnCountError，非数值返回 FormatError；
// 3) 保持块内行序。
type Decoder interface {
	Decode(ctx context.Context, fileID FileID, b Block) ([]Record, error)
}
