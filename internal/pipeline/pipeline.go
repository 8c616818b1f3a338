package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nrconv/internal/align"
	"nrconv/internal/diag"
	"nrconv/internal/grid"
	"nrconv/internal/lattice"
	"nrconv/internal/richardson"
	"nrconv/internal/tensor"
	"nrconv/pkg/contract"
)

// - 单点并发：仅解析阶段按文件并发（errgroup + 上限）；原子组件均为同步、无内部并发。
// - 屏障：对齐及之后的阶段等待全部文件解析完成。
// - 首错取消：任一文件解析失败即取消其余；返回首个错误。
// - 线性阶段：Parse → Select → Align → Analyze → Write，不重试。

// 阶段名（StageError.Stage 与日志 comp）。
const (
	StageParse       = "parse"
	StageSelect      = "select"
	StageAlign       = "align"
	StageDifference  = richardson.StepDifference
	StageSolveOrder  = richardson.StepSolveOrder
	StageExtrapolate = richardson.StepExtrapolate
	StageWrite       = "write"
	StageLedger      = "ledger"
)

// StageError 标明失败阶段。
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader    contract.Reader
	Splitter  contract.Splitter
	Decoder   contract.Decoder
	Assembler contract.Assembler
	Writer    contract.Writer
	// Ledger 可选；为 nil 时不记录运行历史。
	Ledger contract.Ledger
}

// Artifacts: 输出工件名。
type Artifacts struct {
	Alpha    string
	True     string
	SelfConv string
}

// DefaultArtifacts 返回默认工件名。
func DefaultArtifacts() Artifacts {
	return Artifacts{
		Alpha:    "richardson.alpha.asc",
		True:     "richardson.true.asc",
		SelfConv: "richardson.selfconv.asc",
	}
}

// Settings 运行期配置。
type Settings struct {
	// Inputs: 每个 root 展开后的文件即一个分辨率；顺序任意（StrictOrder 时须粗到细）。
	Inputs      []string
	Concurrency int
	// Time/TimeTolerance: 选取的坐标时间。
	Time          float64
	TimeTolerance float64
	Component     tensor.Component
	Axis          int
	Epsilon       float64
	Domain        *align.Domain
	Solver        richardson.SolverOptions
	// StrictOrder: 乱序即对齐失败；默认按实测 h 修正输入顺序并记 warn。
	StrictOrder bool
	Artifacts   Artifacts
}

// Report: 一次运行的摘要。
type Report struct {
	RunID     string
	Files     []contract.FileID
	Reordered bool
	Result    richardson.Result
	Written   []contract.ArtifactID
}

// Run 执行完整流水线。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (Report, error) {
	if err := sanity(comp, set); err != nil {
		return Report{}, fmt.Errorf("sanity: %w", err)
	}
	rep := Report{RunID: uuid.NewString()}
	runStart := time.Now()
	runTimer := logger.StartWith("pipeline", "run", rep.RunID)
	ok := false
	defer func() {
		kv := diag.Snapshot().Summary()
		kv["ok"] = strconv.FormatBool(ok)
		runTimer.FinishKV("run finished", int64(len(rep.Files)), kv)
		if t := diag.GetTerminal(); t != nil {
			t.RunFinish(ok, time.Since(runStart))
		}
	}()

	datasets, err := Parse(ctx, comp, set.Inputs, set.Concurrency, logger)
	if err != nil {
		return rep, &StageError{Stage: StageParse, Err: err}
	}
	for _, ds := range datasets {
		rep.Files = append(rep.Files, ds.Source)
	}

	rs, err := stage(logger, StageSelect, "", func() ([]align.Resolution, int64, error) {
		rs, err := Select(datasets, set)
		return rs, int64(len(rs)), err
	})
	if err != nil {
		return rep, &StageError{Stage: StageSelect, Err: err}
	}

	aligned, err := stage(logger, StageAlign, "", func() ([]align.Aligned, int64, error) {
		sorted, reordered, err := align.SortCoarsestFirst(rs)
		if err != nil {
			return nil, 0, err
		}
		if reordered && !set.StrictOrder {
			rep.Reordered = true
			logger.Warn(StageAlign, "input order corrected to coarsest-first", spacingKV(sorted))
			rs = sorted
		}
		as, err := align.Align(rs, align.Options{Epsilon: set.Epsilon, Axis: set.Axis, Domain: set.Domain})
		if err != nil {
			return nil, 0, err
		}
		return as, int64(len(as[0].Values)), nil
	})
	if err != nil {
		return rep, &StageError{Stage: StageAlign, Err: err}
	}
	if t := diag.GetTerminal(); t != nil {
		t.Stage(StageAlign, fmt.Sprintf("%d 个分辨率 | %d 点", len(aligned), len(aligned[0].Values)))
	}

	t0 := time.Now()
	res, err := richardson.Analyze(ctx, aligned, set.Solver)
	rep.Result = res
	if err != nil {
		st := StageSolveOrder
		var se *richardson.StepError
		if errors.As(err, &se) {
			st = se.Step
		}
		fail(logger, st, err, &t0, "", convergenceKV(err))
		return rep, &StageError{Stage: st, Err: err}
	}
	diag.ObserveDuration(StageSolveOrder, "finish", time.Since(t0))
	diag.IncOp(StageSolveOrder, "finish", "success")
	logger.InfoFinish(StageSolveOrder, "order solved", t0, int64(res.Fit.Iterations))
	if t := diag.GetTerminal(); t != nil {
		t.Stage(StageSolveOrder, fmt.Sprintf("n=%.6g | 残差 %.3g | 迭代 %d", res.Fit.Order, res.Fit.Residual, res.Fit.Iterations))
	}

	written, err := writeArtifacts(ctx, comp.Writer, set, res, logger)
	rep.Written = written
	if err != nil {
		return rep, &StageError{Stage: StageWrite, Err: err}
	}

	if comp.Ledger != nil {
		sum := contract.RunSummary{
			ID:         rep.RunID,
			CreatedAt:  time.Now(),
			Time:       set.Time,
			Component:  set.Component.String(),
			Order:      res.Fit.Order,
			Residual:   res.Fit.Residual,
			Iterations: res.Fit.Iterations,
			Points:     len(res.Positions),
			Files:      res.Sources,
			Spacings:   res.Spacings,
		}
		if _, err := stage(logger, StageLedger, "", func() (struct{}, int64, error) {
			return struct{}{}, 1, comp.Ledger.Record(ctx, sum)
		}); err != nil {
			return rep, &StageError{Stage: StageLedger, Err: err}
		}
	}
	ok = true
	return rep, nil
}

// Parse 读取全部输入并按文件并发解析为 Dataset；结果顺序与 Reader 产出顺序一致。
func Parse(ctx context.Context, comp Components, inputs []string, concurrency int, logger *diag.Logger) ([]contract.Dataset, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var (
		mu       sync.Mutex
		datasets []contract.Dataset
		done     int
		failed   int
		total    int
	)
	if t := diag.GetTerminal(); t != nil {
		t.RunStart(len(inputs), concurrency)
	}
	// Reader 顺序产出；每个文件读入内存后交给 errgroup
	acc, _ := comp.Splitter.(contract.Acceptor)
	ierr := comp.Reader.Iterate(gctx, inputs, func(fileID contract.FileID, rc io.ReadCloser) error {
		if acc != nil && !acc.Accepts(fileID) {
			logger.DebugStart("reader", "skip", string(fileID), map[string]string{"reason": "extension not accepted"})
			return rc.Close()
		}
		data, err := io.ReadAll(rc)
		cerr := rc.Close()
		if err == nil {
			err = cerr
		}
		if err != nil {
			fail(logger, "reader", err, nil, string(fileID), nil)
			return fmt.Errorf("read %s: %w", fileID, err)
		}
		mu.Lock()
		slot := total
		total++
		datasets = append(datasets, contract.Dataset{})
		mu.Unlock()

		g.Go(func() error {
			start := time.Now()
			ds, err := ParseFile(gctx, comp, fileID, data, logger)
			if t := diag.GetTerminal(); t != nil {
				t.FileParsed(string(fileID), ds.Len(), err == nil, time.Since(start))
			}
			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				failed++
			} else {
				datasets[slot] = ds
			}
			if t := diag.GetTerminal(); t != nil {
				t.ParseProgress(done, total, failed)
			}
			return err
		})
		return nil
	})
	// 必须等待已启动的 goroutine，即便 Iterate 失败
	gerr := g.Wait()
	if gerr != nil {
		return nil, gerr
	}
	if ierr != nil {
		return nil, ierr
	}
	return datasets, nil
}

// ParseFile: Split → Decode（逐块）→ Assemble。
func ParseFile(ctx context.Context, comp Components, fileID contract.FileID, data []byte, logger *diag.Logger) (contract.Dataset, error) {
	fid := string(fileID)
	blocks, err := stage(logger, "splitter", fid, func() ([]contract.Block, int64, error) {
		b, err := comp.Splitter.Split(ctx, fileID, bytes.NewReader(data))
		return b, int64(len(b)), err
	})
	if err != nil {
		return contract.Dataset{}, err
	}
	recs, err := stage(logger, "decoder", fid, func() ([][]contract.Record, int64, error) {
		out := make([][]contract.Record, 0, len(blocks))
		var n int64
		for _, b := range blocks {
			rs, err := comp.Decoder.Decode(ctx, fileID, b)
			if err != nil {
				return nil, n, err
			}
			n += int64(len(rs))
			out = append(out, rs)
		}
		return out, n, nil
	})
	if err != nil {
		return contract.Dataset{}, err
	}
	return stage(logger, "assembler", fid, func() (contract.Dataset, int64, error) {
		ds, err := comp.Assembler.Assemble(ctx, fileID, recs)
		return ds, int64(ds.Len()), err
	})
}

// Select 为每个数据集取目标时刻的快照，测得 h 并抽取分量剖面。
func Select(datasets []contract.Dataset, set Settings) ([]align.Resolution, error) {
	if len(datasets) < 3 {
		return nil, &contract.SchemaMismatchError{What: "resolutions", Detail: fmt.Sprintf("need at least 3 input files, got %d", len(datasets))}
	}
	out := make([]align.Resolution, 0, len(datasets))
	for _, ds := range datasets {
		s, err := grid.SnapshotAtTime(ds, set.Time, set.TimeTolerance)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ds.Source, err)
		}
		h, err := lattice.Spacing(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ds.Source, err)
		}
		p, err := grid.SnapshotProfile(s, set.Component, set.Axis)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ds.Source, err)
		}
		out = append(out, align.Resolution{Source: ds.Source, H: h, Positions: p.Positions, Values: p.Values})
	}
	return out, nil
}

func writeArtifacts(ctx context.Context, w contract.Writer, set Settings, res richardson.Result, logger *diag.Logger) ([]contract.ArtifactID, error) {
	coords := res.Coords(set.Axis)
	tables := []struct {
		name string
		cols [][]float64
	}{
		{set.Artifacts.Alpha, [][]float64{res.Alpha}},
		{set.Artifacts.True, [][]float64{res.True}},
		{set.Artifacts.SelfConv, res.Rescaled},
	}
	var written []contract.ArtifactID
	for _, tb := range tables {
		if tb.name == "" {
			continue
		}
		id := contract.ArtifactID(tb.name)
		_, err := stage(logger, "writer", tb.name, func() (struct{}, int64, error) {
			var buf bytes.Buffer
			if err := richardson.WriteTable(&buf, coords, tb.cols...); err != nil {
				return struct{}{}, 0, err
			}
			n := int64(buf.Len())
			return struct{}{}, n, w.Write(ctx, id, &buf)
		})
		if err != nil {
			return written, fmt.Errorf("%s: %w", tb.name, err)
		}
		written = append(written, id)
	}
	return written, nil
}

// stage 统一 start/finish/error 日志与指标。
func stage[T any](logger *diag.Logger, comp, fileID string, fn func() (T, int64, error)) (T, error) {
	tm := logger.StartWith(comp, "start", fileID)
	v, n, err := fn()
	if err != nil {
		t0 := tm.Since()
		fail(logger, comp, err, &t0, fileID, nil)
		return v, err
	}
	tm.Finish("finish", n)
	diag.ObserveDuration(comp, "finish", time.Since(tm.Since()))
	diag.IncOp(comp, "finish", "success")
	return v, nil
}

func fail(logger *diag.Logger, comp string, err error, since *time.Time, fileID string, kv map[string]string) {
	code := diag.Classify(err)
	if kv == nil {
		kv = map[string]string{}
	}
	kv["err"] = err.Error()
	logger.ErrorWithKV(comp, string(code), "failed", since, fileID, kv)
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func convergenceKV(err error) map[string]string {
	var ce *contract.ConvergenceSearchError
	if !errors.As(err, &ce) {
		return nil
	}
	return map[string]string{
		"order":      strconv.FormatFloat(ce.Order, 'g', 6, 64),
		"residual":   strconv.FormatFloat(ce.Residual, 'g', 3, 64),
		"iterations": strconv.Itoa(ce.Iterations),
	}
}

func spacingKV(rs []align.Resolution) map[string]string {
	kv := make(map[string]string, len(rs))
	for i, r := range rs {
		kv[strconv.Itoa(i)] = fmt.Sprintf("%s h=%.6g", r.Source, r.H)
	}
	return kv
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Splitter == nil || c.Decoder == nil || c.Assembler == nil || c.Writer == nil {
		return errors.New("nil component")
	}
	if len(s.Inputs) == 0 {
		return errors.New("no inputs")
	}
	if s.Concurrency < 1 {
		return errors.New("concurrency must be >= 1")
	}
	if s.Axis < 0 || s.Axis > 2 {
		return fmt.Errorf("axis %d outside {0,1,2}", s.Axis)
	}
	if s.TimeTolerance < 0 {
		return errors.New("time tolerance must be >= 0")
	}
	return s.Solver.Validate()
}
