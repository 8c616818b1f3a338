package blocks

import (
	"context"
	"io"
	"path"
	"strings"

	"nrconv/pkg/contract"
)

// Delimiter: 迭代块分隔符（恰好三个连续换行，即两行空行）。
const Delimiter = "\n\n\n"

// Options 为块拆分器的可选配置（最小必要）。
type Options struct {
	// CommentPrefix: 注释行前缀，默认 "#"。
	CommentPrefix string `json:"comment_prefix"`
	// AllowExts: 允许处理的文件扩展名（大小写不敏感，包含点，如 [".asc"]）。
	// 为空时采用默认 [".asc"]；显式设为空切片则表示不限制。
	AllowExts []string `json:"allow_exts"`
}

// Splitter 实现 Cactus ASCII 输出的迭代块拆分。
type Splitter struct {
	comment string
	// 允许扩展名（小写），若为 nil 表示不限制。
	allow map[string]struct{}
}

// New 创建块拆分器。
func New(opts *Options) *Splitter {
	comment := "#"
	if opts != nil && opts.CommentPrefix != "" {
		comment = opts.CommentPrefix
	}
	var allow map[string]struct{}
	if opts == nil || opts.AllowExts == nil {
		allow = map[string]struct{}{".asc": {}}
	} else if len(opts.AllowExts) > 0 {
		allow = make(map[string]struct{}, len(opts.AllowExts))
		for _, e := range opts.AllowExts {
			if e == "" {
				continue
			}
			allow[strings.ToLower(e)] = struct{}{}
		}
	}
	return &Splitter{comment: comment, allow: allow}
}

var _ contract.Splitter = (*Splitter)(nil)

// Accepts 报告该文件是否在扩展名白名单内。
func (s *Splitter) Accepts(fileID contract.FileID) bool {
	if s.allow == nil {
		return true
	}
	_, ok := s.allow[strings.ToLower(path.Ext(string(fileID)))]
	return ok
}

// Split 读取整个流并拆分为 []Block；不在白名单内的文件返回 (nil, nil)。
func (s *Splitter) Split(ctx context.Context, fileID contract.FileID, r io.Reader) ([]contract.Block, error) {
	if !s.Accepts(fileID) {
		return nil, nil
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")

	var out []contract.Block
	line := 1
	for _, chunk := range strings.Split(text, Delimiter) {
		if err := ctxErr(ctx); err != nil {
			return nil, err
		}
		start := line
		line += strings.Count(chunk, "\n") + strings.Count(Delimiter, "\n")
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		b := contract.Block{Index: len(out)}
		for i, l := range strings.Split(chunk, "\n") {
			if strings.TrimSpace(l) == "" || strings.HasPrefix(l, s.comment) {
				continue
			}
			b.Rows = append(b.Rows, strings.Split(strings.TrimRight(l, " \t"), "\t"))
			b.Lines = append(b.Lines, start+i)
		}
		if len(b.Rows) == 0 {
			return nil, &contract.FormatError{File: fileID, Block: b.Index, Line: start, Reason: "block contains no data rows"}
		}
		out = append(out, b)
	}
	return out, nil
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
