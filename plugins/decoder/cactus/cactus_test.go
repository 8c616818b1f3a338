package cactus

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nrconv/pkg/contract"
)

func row(field string) []string {
	return []string{"8", "0", "0 0 0", "3 0 0", "0.25", "0.3 0 0", field}
}

func block(rows ...[]string) contract.Block {
	b := contract.Block{Index: 2}
	for i, r := range rows {
		b.Rows = append(b.Rows, r)
		b.Lines = append(b.Lines, 10+i)
	}
	return b
}

// TestDecodeScalar 标量文件的规范布局。
func TestDecodeScalar(t *testing.T) {
	d, err := New(&Options{Field: contract.KindScalar})
	require.NoError(t, err)
	recs, err := d.Decode(context.Background(), "phi.x.asc", block(row("1.5e-3")))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, 8, r.Iteration)
	assert.Equal(t, 0, r.TimeLevel)
	assert.Equal(t, contract.GridIndex{3, 0, 0}, r.Index)
	assert.Equal(t, 0.25, r.Time)
	assert.Equal(t, []float64{0.3, 0, 0}, r.Position)
	assert.True(t, r.Field.IsScalar())
	assert.Equal(t, 1.5e-3, r.Field.Scalar)
}

// TestDecodeTensor 张量文件：数据列 6 个 token。
func TestDecodeTensor(t *testing.T) {
	d, err := New(&Options{Field: contract.KindTensor})
	require.NoError(t, err)
	recs, err := d.Decode(context.Background(), "gxx.x.asc", block(row("1 0 0 1 0 1")))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, contract.TagVector, recs[0].Field.Tag)
	assert.Equal(t, []float64{1, 0, 0, 1, 0, 1}, recs[0].Field.Vector)
}

// TestDecodeAutoKind 未声明时由首行决定，后续行须一致。
func TestDecodeAutoKind(t *testing.T) {
	d, err := New(nil)
	require.NoError(t, err)

	recs, err := d.Decode(context.Background(), "a.asc", block(row("2"), row("3")))
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	_, err = d.Decode(context.Background(), "a.asc", block(row("2"), row("1 0 0 1 0 1")))
	var cce *contract.ColumnCountError
	require.True(t, errors.As(err, &cce))
	assert.Equal(t, contract.KindScalar, cce.Kind)
	assert.Equal(t, 11, cce.Line)
	assert.ErrorIs(t, err, contract.ErrFormat)
}

// TestDecodeColumnCount 列数/宽度不符。
func TestDecodeColumnCount(t *testing.T) {
	cases := []struct {
		name string
		kind contract.FieldKind
		row  []string
		what string
	}{
		{"少一列", contract.KindScalar, []string{"0", "0", "0 0 0", "0 0 0", "0", "1"}, "columns"},
		{"标量文件给向量", contract.KindScalar, row("1 2"), "field"},
		{"张量文件给标量", contract.KindTensor, row("1"), "field"},
		{"张量宽度不足", contract.KindTensor, row("1 2 3"), "field"},
		{"格点下标不足", contract.KindScalar, []string{"0", "0", "0 0 0", "0 0", "0", "0", "1"}, "grid index"},
		{"位置超过三维", contract.KindScalar, []string{"0", "0", "0 0 0", "0 0 0", "0", "0 0 0 0", "1"}, "position"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := New(&Options{Field: tc.kind})
			require.NoError(t, err)
			_, err = d.Decode(context.Background(), "f.asc", block(tc.row))
			var cce *contract.ColumnCountError
			require.True(t, errors.As(err, &cce), "期望 ColumnCountError，得到 %v", err)
			assert.Equal(t, tc.what, cce.What)
			assert.Equal(t, 2, cce.Block)
		})
	}
}

// TestDecodeRejectsExpressions 非字面量一律 FormatError。
func TestDecodeRejectsExpressions(t *testing.T) {
	d, _ := New(&Options{Field: contract.KindScalar})
	for _, bad := range []string{"1+1", "__import__('os')", "0x10", "1_000", "abc"} {
		_, err := d.Decode(context.Background(), "f.asc", block(row(bad)))
		var fe *contract.FormatError
		require.True(t, errors.As(err, &fe), "输入 %q 应失败", bad)
		assert.ErrorIs(t, err, contract.ErrFormat)
	}
}

// TestDecodeIntegralFloat 整数列接受整值浮点字面量，拒绝小数。
func TestDecodeIntegralFloat(t *testing.T) {
	d, _ := New(&Options{Field: contract.KindScalar})
	r := row("1")
	r[0] = "16.0"
	recs, err := d.Decode(context.Background(), "f.asc", block(r))
	require.NoError(t, err)
	assert.Equal(t, 16, recs[0].Iteration)

	r[0] = "16.5"
	_, err = d.Decode(context.Background(), "f.asc", block(r))
	assert.ErrorIs(t, err, contract.ErrFormat)
}

// TestDecodeNonFinite nan/inf 是合法字面量（崩溃检测依赖）。
func TestDecodeNonFinite(t *testing.T) {
	d, _ := New(&Options{Field: contract.KindScalar})
	recs, err := d.Decode(context.Background(), "f.asc", block(row("nan"), row("-inf")))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(recs[0].Field.Scalar))
	assert.True(t, math.IsInf(recs[1].Field.Scalar, -1))
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(&Options{Field: "vector"})
	assert.Error(t, err)
}

func TestParseColumn(t *testing.T) {
	v, err := ParseColumn("  7 ")
	require.NoError(t, err)
	assert.True(t, v.IsScalar())
	v, err = ParseColumn("1 -2.5e3")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2500}, v.Vector)
	_, err = ParseColumn("   ")
	assert.Error(t, err)
}
