package contract

import (
	"context"
	"io"
)

// Splitter: 将单文件字节流按迭代分隔符拆分为有序 Block 序列。
// 约束：
// 1) 不跨文件合并；
// 2) Block.Index 严格递增且稳定；
// 3) 丢弃空块与注释行，不做数值解析；
// 4) 无内部并发、幂等；
// 5) 非空块无数据行时返回 FormatError。
type Splitter interface {
	Split(ctx context.Context, fileID FileID, r io.Reader) ([]Block, error)
}

// Acceptor: Splitter 可选实现；不接受的文件在读取前被跳过，不计为数据集。
type Acceptor interface {
	Accepts(fileID FileID) bool
}
