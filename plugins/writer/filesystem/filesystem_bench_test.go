package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"testing"

	"nrconv/internal/richardson"
	"nrconv/pkg/contract"
)

// BenchmarkWriteTable 写出不同点数的 α 表，比较原子替换与直接写入。
func BenchmarkWriteTable(b *testing.B) {
	for _, points := range []int{257, 65537} {
		coords := make([]float64, points)
		alpha := make([]float64, points)
		for i := range coords {
			coords[i] = float64(i) / float64(points-1)
			alpha[i] = 2 * (1 + math.Sin(coords[i]))
		}
		var table bytes.Buffer
		if err := richardson.WriteTable(&table, coords, alpha); err != nil {
			b.Fatalf("生成表失败: %v", err)
		}
		for _, atomic := range []bool{true, false} {
			b.Run(fmt.Sprintf("points=%d/atomic=%t", points, atomic), func(b *testing.B) {
				w, err := New(&Options{OutputDir: b.TempDir(), Atomic: &atomic})
				if err != nil {
					b.Fatalf("创建 Writer 失败: %v", err)
				}
				id := contract.ArtifactID("richardson.alpha.asc")
				ctx := context.Background()
				b.SetBytes(int64(table.Len()))
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if err := w.Write(ctx, id, bytes.NewReader(table.Bytes())); err != nil {
						b.Fatalf("写入失败: %v", err)
					}
				}
			})
		}
	}
}
