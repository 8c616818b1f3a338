package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"nrconv/pkg/contract"
)

// Options: 结果表写出配置。
type Options struct {
	// OutputDir: 输出根目录（必需）。
	OutputDir string `json:"output_dir"`
	// Prefix: 产物文件名前缀（例如 "gxx."，得到 gxx.richardson.alpha.asc）。
	Prefix string `json:"prefix,omitempty"`
	// Atomic: 同目录临时文件 + rename。未提供时默认 true。
	Atomic *bool `json:"atomic,omitempty"`
	// Overwrite: 目标已存在时是否覆盖。未提供时默认 true；false 时返回 os.ErrExist。
	Overwrite *bool `json:"overwrite,omitempty"`
	// PermFile/PermDir: 为 0 时取 0644/0755。
	PermFile os.FileMode `json:"perm_file,omitempty"`
	PermDir  os.FileMode `json:"perm_dir,omitempty"`
	// BufSize: 写缓冲区大小；<=0 取 64KiB。
	BufSize int `json:"buf_size,omitempty"`
}

// FS 将分析产物写入 OutputDir；产物 ID 只允许为相对路径。
type FS struct {
	root      string
	prefix    string
	atomic    bool
	overwrite bool
	permF     os.FileMode
	permD     os.FileMode
	bufSize   int
}

// New 创建文件系统 Writer。
func New(opts *Options) (*FS, error) {
	if opts == nil || strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("writer: output_dir required: %w", os.ErrInvalid)
	}
	if strings.ContainsAny(opts.Prefix, `/\`) {
		return nil, fmt.Errorf("writer: prefix %q must not contain path separators: %w", opts.Prefix, contract.ErrPathInvalid)
	}
	w := &FS{root: opts.OutputDir, prefix: opts.Prefix, atomic: true, overwrite: true, permF: 0o644, permD: 0o755, bufSize: 64 * 1024}
	if opts.Atomic != nil {
		w.atomic = *opts.Atomic
	}
	if opts.Overwrite != nil {
		w.overwrite = *opts.Overwrite
	}
	if opts.PermFile != 0 {
		w.permF = opts.PermFile
	}
	if opts.PermDir != 0 {
		w.permD = opts.PermDir
	}
	if opts.BufSize > 0 {
		w.bufSize = opts.BufSize
	}
	return w, nil
}

var _ contract.Writer = (*FS)(nil)

// Path 返回 id 对应的目标路径（含越界校验）。
func (w *FS) Path(id contract.ArtifactID) (string, error) {
	rel := filepath.Clean(filepath.FromSlash(string(id)))
	switch {
	case rel == "." || rel == "" || rel == "..":
		return "", contract.ErrPathInvalid
	case filepath.IsAbs(rel), filepath.VolumeName(rel) != "":
		return "", contract.ErrPathInvalid
	case strings.HasPrefix(rel, ".."+string(filepath.Separator)):
		return "", contract.ErrPathInvalid
	}
	dir, base := filepath.Split(rel)
	return filepath.Join(w.root, dir, w.prefix+base), nil
}

// Write 将 r 的全部字节写入 id 映射的目标路径。
func (w *FS) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dest, err := w.Path(id)
	if err != nil {
		return err
	}
	if !w.overwrite {
		if _, err := os.Stat(dest); err == nil {
			return &os.PathError{Op: "write", Path: dest, Err: os.ErrExist}
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), w.permD); err != nil {
		return err
	}
	if w.atomic {
		return w.writeAtomic(ctx, dest, r)
	}
	return w.writeDirect(ctx, dest, r)
}

func (w *FS) writeDirect(ctx context.Context, dest string, r io.Reader) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.permF)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(f, w.bufSize)
	if _, err := io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (w *FS) writeAtomic(ctx context.Context, dest string, r io.Reader) (err error) {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()
	_ = os.Chmod(tmpPath, w.permF)

	bw := bufio.NewWriterSize(tmp, w.bufSize)
	if _, err = io.Copy(bw, readerWithCtx(ctx, r)); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	// 同目录 rename：POSIX 原子替换；Windows 上 os.Rename 使用 MOVEFILE_REPLACE_EXISTING
	if err = os.Rename(tmpPath, dest); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

// syncDir 尽力同步父目录元数据（部分平台不支持，忽略错误）。
func syncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = f.Sync()
	_ = f.Close()
}

// readerWithCtx: 在每次 Read 前检查 ctx 是否已取消。
func readerWithCtx(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
