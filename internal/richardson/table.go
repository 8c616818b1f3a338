package richardson

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// WriteTable 输出空白分隔的表：每行 "position value [value...]"，%.17g。
func WriteTable(w io.Writer, coords []float64, columns ...[]float64) error {
	for _, c := range columns {
		if len(c) != len(coords) {
			return fmt.Errorf("table: column has %d values for %d positions", len(c), len(coords))
		}
	}
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 64)
	for i, x := range coords {
		buf = strconv.AppendFloat(buf[:0], x, 'g', 17, 64)
		for _, c := range columns {
			buf = append(buf, ' ')
			buf = strconv.AppendFloat(buf, c[i], 'g', 17, 64)
		}
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}
