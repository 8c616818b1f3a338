package richardson

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nrconv/internal/align"
	"nrconv/pkg/contract"
)

var spacings = []float64{0.1, 0.05, 0.025}

// synthetic: v(h, x) = sin(x) + c·hⁿ，对齐后的三分辨率。
func synthetic(n, c float64) []align.Aligned {
	var pos [][]float64
	for i := 0; i <= 10; i++ {
		pos = append(pos, []float64{float64(i) * 0.1, 0, 0})
	}
	out := make([]align.Aligned, len(spacings))
	for k, h := range spacings {
		a := align.Aligned{Source: contract.FileID([]string{"h0", "h1", "h2"}[k]), H: h, Positions: pos}
		for _, p := range pos {
			a.Values = append(a.Values, math.Sin(p[0])+c*(1+p[0])*math.Pow(h, n))
		}
		out[k] = a
	}
	return out
}

func TestDifferencesAgainstFinest(t *testing.T) {
	d, err := Differences([][]float64{{3, 4}, {2, 2}, {1, 1}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 3}, {1, 1}}, d)

	_, err = Differences([][]float64{{1}})
	assert.Error(t, err)
	_, err = Differences([][]float64{{1, 2}, {1}})
	assert.ErrorIs(t, err, contract.ErrAlignment)
}

// TestOnlyFinestThreeSolve 四个分辨率：收敛阶只由最细的三个决定，最粗分辨率的误差项被破坏也不影响。
func TestOnlyFinestThreeSolve(t *testing.T) {
	hs := []float64{0.2, 0.1, 0.05, 0.025}
	var pos [][]float64
	for i := 0; i <= 5; i++ {
		pos = append(pos, []float64{float64(i) * 0.2, 0, 0})
	}
	as := make([]align.Aligned, len(hs))
	for k, h := range hs {
		a := align.Aligned{Source: contract.FileID([]string{"h0", "h1", "h2", "h3"}[k]), H: h, Positions: pos}
		for _, p := range pos {
			v := math.Sin(p[0]) + 2*(1+p[0])*math.Pow(h, 4)
			if k == 0 {
				v += 5
			}
			a.Values = append(a.Values, v)
		}
		as[k] = a
	}
	res, err := Analyze(context.Background(), as, DefaultSolverOptions())
	require.NoError(t, err)
	assert.InDelta(t, 4.0, res.Fit.Order, 1e-3)
	assert.Less(t, res.Fit.Residual, 1e-6)
	assert.Equal(t, hs, res.Spacings)
	require.Len(t, res.Differences, 3)
	require.Len(t, res.Rescaled, 3)
	for i, p := range res.Positions {
		assert.InDelta(t, 2*(1+p[0]), res.Alpha[i], 1e-6)
		assert.InDelta(t, math.Sin(p[0]), res.True[i], 1e-9)
	}
}

// TestConvergenceRecovery 四阶合成数据恢复 n≈4。
func TestConvergenceRecovery(t *testing.T) {
	for _, n := range []float64{2, 4} {
		res, err := Analyze(context.Background(), synthetic(n, 2), DefaultSolverOptions())
		require.NoError(t, err)
		assert.InDelta(t, n, res.Fit.Order, 0.1)
		assert.LessOrEqual(t, res.Fit.Residual, 1e-2)

		// α = c·(1+x)，与分辨率无关
		for i, p := range res.Positions {
			assert.InDelta(t, 2*(1+p[0]), res.Alpha[i], 0.05*2*(1+p[0]))
		}
	}
}

// TestExtrapolateRoundTrip true + α·hⁿ == v(h_k)。
func TestExtrapolateRoundTrip(t *testing.T) {
	fine := []float64{1, 2, 3}
	d := []float64{0.5, -0.25, 1e-3}
	n := 3.3
	alpha, truth, err := Extrapolate(n, 0.05, 0.025, d, fine)
	require.NoError(t, err)
	for i := range fine {
		assert.InDelta(t, fine[i], truth[i]+alpha[i]*math.Pow(0.025, n), 1e-12)
		assert.InDelta(t, d[i], alpha[i]*(math.Pow(0.05, n)-math.Pow(0.025, n)), 1e-12)
	}

	_, _, err = Extrapolate(2, 0.1, 0.1, d, fine)
	assert.Error(t, err)
}

// TestExtrapolateConstantAlpha 精确 n 阶数据：α 恒为 c，true 恢复解析解。
func TestExtrapolateConstantAlpha(t *testing.T) {
	const n, c = 4.0, 3.0
	v := func(h float64) float64 { return 1 + c*math.Pow(h, n) }
	alpha, truth, err := Extrapolate(n, 0.05, 0.025, []float64{v(0.05) - v(0.025)}, []float64{v(0.025)})
	require.NoError(t, err)
	assert.InDelta(t, c, alpha[0], 1e-6)
	assert.InDelta(t, 1.0, truth[0], 1e-12)
}

func TestScaleFactors(t *testing.T) {
	const n = 2.0
	fs := ScaleFactors(spacings, n)
	require.Len(t, fs, 2)
	assert.InDelta(t, 1.0, fs[1], 1e-15)
	// n 阶数据缩放后与 d_{k−1} 重合
	diffs, err := Differences([][]float64{{math.Pow(0.1, n)}, {math.Pow(0.05, n)}, {math.Pow(0.025, n)}})
	require.NoError(t, err)
	r := RescaledDifferences(spacings, n, diffs)
	assert.InDelta(t, r[1][0], r[0][0], 1e-15)
}

func TestSolveOrderFailure(t *testing.T) {
	// d1 与 d0 反号：任何正阶数都无法满足
	diffs := [][]float64{{1, 2, 3}, {-1, -2, -3}}
	fit, err := SolveOrder(context.Background(), spacings, diffs, DefaultSolverOptions())
	var ce *contract.ConvergenceSearchError
	require.True(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, contract.ErrConvergenceSearch)
	assert.Greater(t, ce.Residual, 1e-2)
	assert.Equal(t, fit.Order, ce.Order)
	assert.GreaterOrEqual(t, ce.Order, 0.5)
	assert.LessOrEqual(t, ce.Order, 6.5)
}

func TestSolveOrderVanishing(t *testing.T) {
	_, err := SolveOrder(context.Background(), spacings, [][]float64{{0, 0}, {0, 0}}, DefaultSolverOptions())
	var ce *contract.ConvergenceSearchError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Reason, "vanishing")
}

func TestSolveOrderCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := synthetic(4, 1)
	diffs, _ := Differences([][]float64{a[0].Values, a[1].Values, a[2].Values})
	_, err := SolveOrder(ctx, spacings, diffs, DefaultSolverOptions())
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, contract.ErrConvergenceSearch)
}

func TestSolverOptionsValidate(t *testing.T) {
	assert.NoError(t, SolverOptions{}.Validate())
	assert.NoError(t, SolverOptions{Lower: 1, Upper: 3, Timeout: time.Second}.Validate())
	assert.Error(t, SolverOptions{Lower: 3, Upper: 1}.Validate())
	assert.Error(t, SolverOptions{Lower: 1, Upper: 3, Seed: 5}.Validate())
	assert.Error(t, SolverOptions{Lower: -1, Upper: 3, Seed: 1}.Validate())

	o := SolverOptions{Lower: 1, Upper: 3}.withDefaults()
	assert.Equal(t, 2.0, o.Seed)
}

func TestAnalyzeNeedsThree(t *testing.T) {
	_, err := Analyze(context.Background(), synthetic(4, 1)[:2], DefaultSolverOptions())
	assert.ErrorIs(t, err, contract.ErrConvergenceSearch)
	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, StepSolveOrder, se.Step)
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []float64{0, 0.1}, []float64{1.5, 1.0 / 3}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "0 1.5", lines[0])
	assert.Equal(t, "0.10000000000000001 0.33333333333333331", lines[1])

	assert.Error(t, WriteTable(&buf, []float64{0}, []float64{1, 2}))
}
