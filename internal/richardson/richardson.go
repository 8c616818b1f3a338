// Package richardson 实现三分辨率自收敛分析：差分、收敛阶求解与 Richardson 外推。
//
// 差分约定：每个非最细分辨率都与最细分辨率作差，d_i = v_i − v_k。
// 阶数求解与外推均基于该约定。
package richardson

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"nrconv/internal/align"
	"nrconv/pkg/contract"
)

// Differences 计算 d_i = v_i − v_k（i < k，k 为最细，即最后一个）。
func Differences(values [][]float64) ([][]float64, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("differences: need 2 resolutions, got %d", len(values))
	}
	k := len(values) - 1
	fine := values[k]
	out := make([][]float64, k)
	for i := 0; i < k; i++ {
		if len(values[i]) != len(fine) {
			return nil, &contract.AlignmentError{Reason: fmt.Sprintf("resolution %d has %d points, finest has %d", i, len(values[i]), len(fine))}
		}
		d := make([]float64, len(fine))
		floats.SubTo(d, values[i], fine)
		out[i] = d
	}
	return out, nil
}

// Extrapolate 给定阶数 n、次细与最细间距及其差 d = v(h_{k−1}) − v(h_k)：
//
//	α = d / (h_{k−1}ⁿ − h_kⁿ)，true = v(h_k) − α·h_kⁿ
func Extrapolate(n, hPrev, hFine float64, d, fine []float64) (alpha, truth []float64, err error) {
	if len(d) != len(fine) {
		return nil, nil, fmt.Errorf("extrapolate: %d differences for %d values", len(d), len(fine))
	}
	den := math.Pow(hPrev, n) - math.Pow(hFine, n)
	if den == 0 || math.IsNaN(den) {
		return nil, nil, fmt.Errorf("extrapolate: degenerate spacing pair (%g, %g) at order %g", hPrev, hFine, n)
	}
	hn := math.Pow(hFine, n)
	alpha = make([]float64, len(d))
	floats.ScaleTo(alpha, 1/den, d)
	truth = make([]float64, len(d))
	floats.AddScaledTo(truth, fine, -hn, alpha)
	return alpha, truth, nil
}

// ScaleFactors: factor_i = (h_{k−1}ⁿ − h_kⁿ)/(h_iⁿ − h_kⁿ)，i < k。
// 在 n 阶收敛下 factor_i·d_i 与 d_{k−1} 重合。
func ScaleFactors(h []float64, n float64) []float64 {
	k := len(h) - 1
	if k < 1 {
		return nil
	}
	hk := math.Pow(h[k], n)
	num := math.Pow(h[k-1], n) - hk
	out := make([]float64, k)
	for i := 0; i < k; i++ {
		out[i] = num / (math.Pow(h[i], n) - hk)
	}
	return out
}

// RescaledDifferences 将每个 d_i 乘以对应的缩放因子。
func RescaledDifferences(h []float64, n float64, diffs [][]float64) [][]float64 {
	fs := ScaleFactors(h, n)
	out := make([][]float64, len(diffs))
	for i, d := range diffs {
		out[i] = make([]float64, len(d))
		if i < len(fs) {
			floats.ScaleTo(out[i], fs[i], d)
		}
	}
	return out
}

// Result: 一次自收敛分析的全部输出，按参考（最粗）位置排列。
type Result struct {
	Sources     []contract.FileID
	Spacings    []float64
	Positions   [][]float64
	Differences [][]float64
	Fit         OrderFit
	Alpha       []float64
	True        []float64
	Rescaled    [][]float64
}

// Coords 返回各位置在 axis 上的坐标。
func (r Result) Coords(axis int) []float64 {
	out := make([]float64, len(r.Positions))
	for i, p := range r.Positions {
		if axis < len(p) {
			out[i] = p[axis]
		}
	}
	return out
}

// 分析链的步骤名（用于 StepError 与日志）。
const (
	StepDifference  = "difference"
	StepSolveOrder  = "solve-order"
	StepExtrapolate = "extrapolate"
)

// StepError 标明 Analyze 在哪一步失败；Unwrap 返回原错误。
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return e.Step + ": " + e.Err.Error() }

func (e *StepError) Unwrap() error { return e.Err }

// Analyze 线性执行 Difference → Solve-Order → Extrapolate。as 须粗到细排列且已对齐。
// 失败时返回 *StepError；已完成步骤的结果保留在返回的 Result 中。
func Analyze(ctx context.Context, as []align.Aligned, opts SolverOptions) (Result, error) {
	if len(as) < 3 {
		return Result{}, &StepError{Step: StepSolveOrder, Err: &contract.ConvergenceSearchError{Reason: fmt.Sprintf("need 3 resolutions, got %d", len(as))}}
	}
	res := Result{Positions: as[0].Positions}
	values := make([][]float64, len(as))
	for i, a := range as {
		res.Sources = append(res.Sources, a.Source)
		res.Spacings = append(res.Spacings, a.H)
		values[i] = a.Values
	}
	diffs, err := Differences(values)
	if err != nil {
		return Result{}, &StepError{Step: StepDifference, Err: err}
	}
	res.Differences = diffs

	fit, err := SolveOrder(ctx, res.Spacings, diffs, opts)
	res.Fit = fit
	if err != nil {
		return res, &StepError{Step: StepSolveOrder, Err: err}
	}
	k := len(as) - 1
	res.Alpha, res.True, err = Extrapolate(fit.Order, res.Spacings[k-1], res.Spacings[k], diffs[k-1], values[k])
	if err != nil {
		return res, &StepError{Step: StepExtrapolate, Err: err}
	}
	res.Rescaled = RescaledDifferences(res.Spacings, fit.Order, diffs)
	return res, nil
}
