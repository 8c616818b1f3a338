package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"nrconv/internal/diag"
	"nrconv/internal/richardson"
	"nrconv/internal/tensor"
	"nrconv/pkg/contract"
	asnap "nrconv/plugins/assembler/snapshots"
	dcactus "nrconv/plugins/decoder/cactus"
	lsql "nrconv/plugins/ledger/sqlite"
	rfs "nrconv/plugins/reader/filesystem"
	sblk "nrconv/plugins/splitter/blocks"
)

const fixtures = "../../testdata/fixtures"

type memWriter struct {
	mu  sync.Mutex
	out map[contract.ArtifactID]string
}

func (w *memWriter) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		w.out = map[contract.ArtifactID]string{}
	}
	w.out[id] = string(b)
	return nil
}

func components(t *testing.T, w contract.Writer) Components {
	t.Helper()
	dec, err := dcactus.New(nil)
	require.NoError(t, err)
	return Components{
		Reader:    rfs.New(nil),
		Splitter:  sblk.New(nil),
		Decoder:   dec,
		Assembler: asnap.New(nil),
		Writer:    w,
	}
}

func settings(kind string, order ...int) Settings {
	var in []string
	for _, k := range order {
		in = append(in, filepath.Join(fixtures, kind, "h"+string(rune('0'+k))))
	}
	return Settings{
		Inputs:      in,
		Concurrency: 2,
		Time:        0.5,
		Component:   tensor.ScalarComponent,
		Solver:      richardson.DefaultSolverOptions(),
		Artifacts:   DefaultArtifacts(),
	}
}

// TestRunScalar 三分辨率标量：恢复 n≈4，写出三个工件并记入账本。
func TestRunScalar(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := &memWriter{}
	comp := components(t, w)
	ledger, err := lsql.Open(&lsql.Options{Path: filepath.Join(t.TempDir(), "runs.sqlite")})
	require.NoError(t, err)
	defer ledger.Close()
	comp.Ledger = ledger

	var logBuf bytes.Buffer
	logger := diag.NewLoggerTo(&logBuf, "test", "debug")
	rep, err := Run(context.Background(), comp, settings("scalar", 0, 1, 2), logger)
	require.NoError(t, err)

	assert.False(t, rep.Reordered)
	assert.Len(t, rep.Files, 3)
	assert.InDelta(t, 4.0, rep.Result.Fit.Order, 0.1)
	assert.Equal(t, []float64{0.25, 0.125, 0.0625}, rep.Result.Spacings)
	require.Len(t, rep.Result.Alpha, 5)
	for i, x := range rep.Result.Coords(0) {
		assert.InDelta(t, 2*(1+x), rep.Result.Alpha[i], 0.02*2*(1+x))
	}
	if d := cmp.Diff([]contract.ArtifactID{"richardson.alpha.asc", "richardson.true.asc", "richardson.selfconv.asc"}, rep.Written); d != "" {
		t.Fatalf("written (-want +got):\n%s", d)
	}
	assert.Len(t, strings.Split(strings.TrimSpace(w.out["richardson.alpha.asc"]), "\n"), 5)
	// 自收敛表：位置 + 两列重标差分
	first := strings.Fields(strings.SplitN(w.out["richardson.selfconv.asc"], "\n", 2)[0])
	assert.Len(t, first, 3)

	runs, err := ledger.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rep.RunID, runs[0].ID)
	assert.Equal(t, 5, runs[0].Points)
	assert.Contains(t, logBuf.String(), `"comp":"solve-order"`)
}

// TestRunTensorComponent 张量 xx 分量二阶收敛。
func TestRunTensorComponent(t *testing.T) {
	set := settings("tensor", 0, 1, 2)
	set.Component = tensor.Component{I: 0, J: 0}
	rep, err := Run(context.Background(), components(t, &memWriter{}), set, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, rep.Result.Fit.Order, 0.1)
}

// TestRunOrdering 乱序输入：默认按实测 h 修正并告警；StrictOrder 时对齐失败。
func TestRunOrdering(t *testing.T) {
	for _, order := range [][]int{{2, 1, 0}, {2, 0, 1}} {
		var logBuf bytes.Buffer
		logger := diag.NewLoggerTo(&logBuf, "test", "info")
		rep, err := Run(context.Background(), components(t, &memWriter{}), settings("scalar", order...), logger)
		require.NoError(t, err, "order %v", order)
		assert.True(t, rep.Reordered)
		assert.Equal(t, []float64{0.25, 0.125, 0.0625}, rep.Result.Spacings)
		assert.InDelta(t, 4.0, rep.Result.Fit.Order, 0.1)
		assert.Contains(t, logBuf.String(), `"level":"warn"`)
	}

	set := settings("scalar", 2, 1, 0)
	set.StrictOrder = true
	_, err := Run(context.Background(), components(t, &memWriter{}), set, nil)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageAlign, se.Stage)
	assert.ErrorIs(t, err, contract.ErrAlignment)

	// 已按粗到细排列时不告警
	var logBuf bytes.Buffer
	rep, err := Run(context.Background(), components(t, &memWriter{}), settings("scalar", 0, 1, 2), diag.NewLoggerTo(&logBuf, "test", "info"))
	require.NoError(t, err)
	assert.False(t, rep.Reordered)
	assert.NotContains(t, logBuf.String(), `"level":"warn"`)
}

// TestParseSkipsForeignFiles 输入目录中的非 .asc 文件不计为分辨率。
func TestParseSkipsForeignFiles(t *testing.T) {
	root := t.TempDir()
	var inputs []string
	for k := 0; k < 3; k++ {
		dir := filepath.Join(root, "h"+string(rune('0'+k)))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		b, err := os.ReadFile(filepath.Join(fixtures, "scalar", "h"+string(rune('0'+k)), "phi.x.asc"))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "phi.x.asc"), b, 0o644))
		inputs = append(inputs, dir)
	}
	require.NoError(t, os.WriteFile(filepath.Join(inputs[0], "notes.txt"), []byte("h=0.25 run\n"), 0o644))

	comp := components(t, &memWriter{})
	ds, err := Parse(context.Background(), comp, inputs, 2, nil)
	require.NoError(t, err)
	require.Len(t, ds, 3)
	for _, d := range ds {
		assert.True(t, strings.HasSuffix(string(d.Source), "phi.x.asc"), d.Source)
		assert.Equal(t, 2, d.Len())
	}

	set := settings("scalar", 0, 1, 2)
	set.Inputs = inputs
	rep, err := Run(context.Background(), comp, set, nil)
	require.NoError(t, err)
	assert.Len(t, rep.Files, 3)
	assert.InDelta(t, 4.0, rep.Result.Fit.Order, 0.1)
}

// TestRunLogsMetricsSummary 运行结束日志携带指标汇总。
func TestRunLogsMetricsSummary(t *testing.T) {
	diag.ResetMetrics()
	var logBuf bytes.Buffer
	_, err := Run(context.Background(), components(t, &memWriter{}), settings("scalar", 0, 1, 2), diag.NewLoggerTo(&logBuf, "test", "info"))
	require.NoError(t, err)
	var last string
	for _, line := range strings.Split(strings.TrimSpace(logBuf.String()), "\n") {
		if strings.Contains(line, `"msg":"run finished"`) {
			last = line
		}
	}
	require.NotEmpty(t, last)
	assert.Contains(t, last, `"ok":"true"`)
	assert.Contains(t, last, `"errors":"0"`)
	assert.Contains(t, last, `"ops_success":`)
	assert.Contains(t, last, `"count":3`)
}

func TestRunSelectFailures(t *testing.T) {
	set := settings("scalar", 0, 1)
	_, err := Run(context.Background(), components(t, &memWriter{}), set, nil)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageSelect, se.Stage)

	set = settings("scalar", 0, 1, 2)
	set.Time = 0.3
	_, err = Run(context.Background(), components(t, &memWriter{}), set, nil)
	assert.ErrorIs(t, err, contract.ErrSchemaMismatch)
}

// TestParseFailureCancels 单个文件格式错误：解析阶段失败且无 goroutine 泄漏。
func TestParseFailureCancels(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.x.asc")
	require.NoError(t, os.WriteFile(bad, []byte("0\t0\t0 0 0\t0 0 0\t0.0\t0.0 0 0\n"), 0o644))
	set := settings("scalar", 0, 1, 2)
	set.Inputs = append(set.Inputs, bad)
	set.Concurrency = 4

	diag.ResetMetrics()
	_, err := Run(context.Background(), components(t, &memWriter{}), set, nil)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageParse, se.Stage)
	assert.ErrorIs(t, err, contract.ErrFormat)
	assert.Equal(t, int64(1), diag.Snapshot().Errors["decoder/format"])
}

// TestRunConvergenceFailure 非单调收敛：solve-order 阶段失败，不写工件。
func TestRunConvergenceFailure(t *testing.T) {
	set := settings("scalar", 0, 1, 2)
	set.Solver.MaxIterations = 1
	set.Solver.Tolerance = 1e-300
	w := &memWriter{}
	_, err := Run(context.Background(), components(t, w), set, nil)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StageSolveOrder, se.Stage)
	assert.ErrorIs(t, err, contract.ErrConvergenceSearch)
	assert.Empty(t, w.out)
}

func TestSanity(t *testing.T) {
	_, err := Run(context.Background(), Components{}, Settings{}, nil)
	assert.Error(t, err)
	set := settings("scalar", 0, 1, 2)
	set.Axis = 3
	_, err = Run(context.Background(), components(t, &memWriter{}), set, nil)
	assert.Error(t, err)
}
