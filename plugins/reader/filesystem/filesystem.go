package filesystem

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nrconv/pkg/contract"
)

// Options 为文件系统 Reader 的可选配置。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: 递归目录时跳过这些目录名（基名，大小写不敏感），
	// 例如 ["checkpoints", "SIMFACTORY"]。不影响单文件 root。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// Include: 目录递归时仅保留基名匹配任一 glob 的文件（如 "*.x.asc"）；为空不过滤。
	Include []string `json:"include"`
}

// FileSystem 实现基于文件系统与 STDIN 的 Reader。
// 单文件 root 原样产出；目录 root 按字典序递归（先子目录后文件），不跟随目录符号链接。
type FileSystem struct {
	bufSize    int
	excludeDir map[string]struct{}
	include    []string
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	r := &FileSystem{bufSize: 64 * 1024, excludeDir: map[string]struct{}{}}
	if opts == nil {
		return r
	}
	if opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	for _, name := range opts.ExcludeDirNames {
		if name != "" {
			r.excludeDir[strings.ToLower(name)] = struct{}{}
		}
	}
	for _, g := range opts.Include {
		if g != "" {
			r.include = append(r.include, g)
		}
	}
	return r
}

var _ contract.Reader = (*FileSystem)(nil)

// Validate 检查 include glob 语法。
func (r *FileSystem) Validate() error {
	for _, g := range r.include {
		if _, err := filepath.Match(g, ""); err != nil {
			return err
		}
	}
	return nil
}

// Resolve 将 roots 展开为稳定顺序的常规文件路径列表。
// roots 为空或仅为 "-" 时返回 ["-"]（STDIN）；"-" 不可与其他 root 混用。
func (r *FileSystem) Resolve(ctx context.Context, roots []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(roots) == 0 || (len(roots) == 1 && roots[0] == "-") {
		return []string{"-"}, nil
	}
	var out []string
	for _, root := range roots {
		if root == "-" {
			return nil, errors.New("stdin '-' cannot be mixed with other roots")
		}
		paths, err := r.resolveOne(ctx, root)
		if err != nil {
			return nil, err
		}
		out = append(out, paths...)
	}
	return out, nil
}

func (r *FileSystem) resolveOne(ctx context.Context, root string) ([]string, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		// 仅跟随到常规文件；目录符号链接忽略
		t, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if t.Mode().IsRegular() {
			return []string{root}, nil
		}
		return nil, nil
	}
	switch {
	case info.IsDir():
		var out []string
		err := r.walkDir(ctx, root, &out)
		return out, err
	case info.Mode().IsRegular():
		return []string{root}, nil
	}
	return nil, nil
}

func (r *FileSystem) walkDir(ctx context.Context, dir string, out *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), out); err != nil {
			return err
		}
	}
	for _, e := range entries {
		if e.IsDir() || !r.included(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		mode := e.Type()
		if mode&os.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil {
				return err
			}
			mode = t.Mode()
		}
		if mode.IsRegular() {
			*out = append(*out, p)
		}
	}
	return nil
}

func (r *FileSystem) included(base string) bool {
	if len(r.include) == 0 {
		return true
	}
	for _, g := range r.include {
		if ok, _ := filepath.Match(g, base); ok {
			return true
		}
	}
	return false
}

// Iterate 依 Resolve 的顺序对每个文件调用 yield；yield 负责关闭 rc。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	paths, err := r.Resolve(ctx, roots)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		rc, id, err := r.Open(p)
		if err != nil {
			return err
		}
		if err := yield(id, rc); err != nil {
			_ = rc.Close()
			return err
		}
	}
	return nil
}

// Open 打开单个路径（"-" 为 STDIN），返回带缓冲的 ReadCloser 与规范化的 FileID。
func (r *FileSystem) Open(p string) (io.ReadCloser, contract.FileID, error) {
	if p == "-" {
		return newBufferedCloser(os.Stdin, r.bufSize), contract.FileID("stdin"), nil
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, "", err
	}
	return newBufferedCloser(f, r.bufSize), contract.NormalizeFileID(p), nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
