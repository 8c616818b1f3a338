package contract

import "context"

// Assembler: 将单文件各块的 Record 装配为 Dataset。
// 约束：
//  1. 每块去除重复 GridIndex（ghost 点），保留首次出现；
//  2. 每块恰为一个迭代；
//  3. 快照按迭代非递减排列，与块的输入顺序无关；
//  4. 不引入跨文件状态。
type Assembler interface {
	Assemble(ctx context.Context, fileID FileID, blocks [][]Record) (Dataset, error)
}
