package cactus

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"nrconv/pkg/contract"
)

// 规范列布局（\t 分隔的 7 列）：
//
//	it  tl  "rl c ml"  "ix iy iz"  t  "x [y [z]]"  data
const (
	colIteration = iota
	colTimeLevel
	colLevels
	colIndex
	colTime
	colPosition
	colField
	numColumns
)

// Options: 解码器配置。
type Options struct {
	// Field: "scalar" | "tensor"；为空时由块内首行数据列宽度决定。
	Field contract.FieldKind `json:"field"`
}

// Decoder: RowTypist，将块内原始行转为强类型 Record。
type Decoder struct {
	field contract.FieldKind
}

// New 创建解码器；未知场类型返回错误。
func New(opts *Options) (*Decoder, error) {
	d := &Decoder{}
	if opts != nil {
		switch opts.Field {
		case contract.KindAuto, contract.KindScalar, contract.KindTensor:
			d.field = opts.Field
		default:
			return nil, fmt.Errorf("decoder: unknown field kind %q", opts.Field)
		}
	}
	return d, nil
}

var _ contract.Decoder = (*Decoder)(nil)

// Kind 返回声明的场类型（可能为 KindAuto）。
func (d *Decoder) Kind() contract.FieldKind { return d.field }

// Decode 逐行解析；列数/宽度不符返回 ColumnCountError，非数字返回 FormatError。
func (d *Decoder) Decode(ctx context.Context, fileID contract.FileID, b contract.Block) ([]contract.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	kind := d.field
	out := make([]contract.Record, 0, len(b.Rows))
	for i, row := range b.Rows {
		p := rowParser{file: fileID, block: b.Index, line: lineOf(b, i)}
		if kind == contract.KindAuto && len(row) == numColumns {
			// 首行决定本块的场类型；其余行须一致。
			switch len(strings.Fields(row[colField])) {
			case 1:
				kind = contract.KindScalar
			case contract.TensorWidth:
				kind = contract.KindTensor
			}
		}
		rec, err := p.record(row, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func lineOf(b contract.Block, i int) int {
	if i < len(b.Lines) {
		return b.Lines[i]
	}
	return 0
}

type rowParser struct {
	file  contract.FileID
	block int
	line  int
}

func (p rowParser) countErr(kind contract.FieldKind, what string, got, want int) error {
	return &contract.ColumnCountError{File: p.file, Block: p.block, Line: p.line, Kind: kind, What: what, Got: got, Want: want}
}

func (p rowParser) formatErr(reason string, err error) error {
	return &contract.FormatError{File: p.file, Block: p.block, Line: p.line, Reason: reason, Err: err}
}

func (p rowParser) record(row []string, kind contract.FieldKind) (contract.Record, error) {
	var rec contract.Record
	if len(row) != numColumns {
		return rec, p.countErr(kind, "columns", len(row), numColumns)
	}
	cols := make([]contract.Value, numColumns)
	for c, raw := range row {
		v, err := ParseColumn(raw)
		if err != nil {
			return rec, p.formatErr(fmt.Sprintf("column %d", c+1), err)
		}
		cols[c] = v
	}

	var err error
	if rec.Iteration, err = p.integer(cols[colIteration], "iteration"); err != nil {
		return rec, err
	}
	if rec.TimeLevel, err = p.integer(cols[colTimeLevel], "time level"); err != nil {
		return rec, err
	}
	if rec.TimeLevel < 0 {
		return rec, p.formatErr("negative time level", nil)
	}
	levels, err := p.integers(cols[colLevels], kind, "rl c ml", 3)
	if err != nil {
		return rec, err
	}
	rec.RefinementLevel, rec.Component, rec.MultigridLevel = levels[0], levels[1], levels[2]
	idx, err := p.integers(cols[colIndex], kind, "grid index", 3)
	if err != nil {
		return rec, err
	}
	rec.Index = contract.GridIndex{idx[0], idx[1], idx[2]}

	if !cols[colTime].IsScalar() {
		return rec, p.countErr(kind, "time", len(cols[colTime].Vector), 1)
	}
	rec.Time = cols[colTime].Scalar

	pos := cols[colPosition].Components()
	if len(pos) > 3 {
		return rec, p.countErr(kind, "position", len(pos), 3)
	}
	rec.Position = contract.CloneFloats(pos)

	field := cols[colField]
	switch kind {
	case contract.KindScalar:
		if !field.IsScalar() {
			return rec, p.countErr(kind, "field", len(field.Vector), 1)
		}
	case contract.KindTensor:
		if field.IsScalar() {
			return rec, p.countErr(kind, "field", 1, contract.TensorWidth)
		}
		if len(field.Vector) != contract.TensorWidth {
			return rec, p.countErr(kind, "field", len(field.Vector), contract.TensorWidth)
		}
	default:
		return rec, p.countErr(kind, "field", len(field.Components()), contract.TensorWidth)
	}
	rec.Field = field
	return rec, nil
}

func (p rowParser) integer(v contract.Value, what string) (int, error) {
	if !v.IsScalar() {
		return 0, p.countErr("", what, len(v.Vector), 1)
	}
	n, ok := asInt(v.Scalar)
	if !ok {
		return 0, p.formatErr(what+" is not an integer", nil)
	}
	return n, nil
}

func (p rowParser) integers(v contract.Value, kind contract.FieldKind, what string, want int) ([]int, error) {
	comps := v.Components()
	if len(comps) != want {
		return nil, p.countErr(kind, what, len(comps), want)
	}
	out := make([]int, want)
	for i, f := range comps {
		n, ok := asInt(f)
		if !ok {
			return nil, p.formatErr(what+" is not an integer", nil)
		}
		out[i] = n
	}
	return out, nil
}

func asInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int(f), true
}

// ParseColumn 按空白切分单列：恰好一个 token 为标量，多个为向量。
// 仅接受整数或浮点字面量（strconv 语法），不做表达式求值。
func ParseColumn(raw string) (contract.Value, error) {
	toks := strings.Fields(raw)
	switch len(toks) {
	case 0:
		return contract.Value{}, fmt.Errorf("empty column")
	case 1:
		f, err := ParseNumber(toks[0])
		if err != nil {
			return contract.Value{}, err
		}
		return contract.ScalarValue(f), nil
	}
	vec := make([]float64, len(toks))
	for i, t := range toks {
		f, err := ParseNumber(t)
		if err != nil {
			return contract.Value{}, err
		}
		vec[i] = f
	}
	return contract.Value{Tag: contract.TagVector, Vector: vec}, nil
}

// ParseNumber 严格解析数字字面量；十六进制与下划线分隔被拒绝。
func ParseNumber(tok string) (float64, error) {
	if strings.ContainsAny(tok, "_xXpP") {
		return 0, fmt.Errorf("invalid numeric literal %q", tok)
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return float64(n), nil
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric literal %q", tok)
	}
	return f, nil
}
