package richardson

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"nrconv/pkg/contract"
)

// SolverOptions: 收敛阶搜索参数。零值字段取默认值。
type SolverOptions struct {
	// Lower/Upper: 搜索区间 [Lower, Upper]，须 0 < Lower < Upper。
	Lower float64
	Upper float64
	// Seed: 初始阶数。
	Seed float64
	// MaxIterations: 单纯形主迭代上限。
	MaxIterations int
	// Tolerance: 允许的相对残差（以 max|d1| 归一）。
	Tolerance float64
	// Timeout: 0 表示不限时。
	Timeout time.Duration
}

// DefaultSolverOptions 返回默认参数：区间 [0.5, 6.5]，种子 4。
func DefaultSolverOptions() SolverOptions {
	return SolverOptions{Lower: 0.5, Upper: 6.5, Seed: 4, MaxIterations: 400, Tolerance: 1e-2}
}

func (o SolverOptions) withDefaults() SolverOptions {
	d := DefaultSolverOptions()
	if o.Lower == 0 && o.Upper == 0 {
		o.Lower, o.Upper = d.Lower, d.Upper
	}
	if o.Seed == 0 {
		o.Seed = (o.Lower + o.Upper) / 2
		if o.Lower <= d.Seed && d.Seed <= o.Upper {
			o.Seed = d.Seed
		}
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	return o
}

// Validate 检查区间与种子。
func (o SolverOptions) Validate() error {
	o = o.withDefaults()
	if !(o.Lower > 0) || !(o.Upper > o.Lower) {
		return fmt.Errorf("solver: interval [%g, %g] must satisfy 0 < lower < upper", o.Lower, o.Upper)
	}
	if o.Seed < o.Lower || o.Seed > o.Upper {
		return fmt.Errorf("solver: seed %g outside [%g, %g]", o.Seed, o.Lower, o.Upper)
	}
	return nil
}

// OrderFit: 阶数搜索结果。
type OrderFit struct {
	Order           float64
	Residual        float64
	Iterations      int
	FuncEvaluations int
	Status          string
}

// Residual 计算给定阶数 n 下三分辨率关系的相对残差：
//
//	max_i |d1 − d0·(h1ⁿ−h2ⁿ)/(h0ⁿ−h2ⁿ)| / max|d1|
//
// 其中 h0>h1>h2，d0=v(h0)−v(h2)，d1=v(h1)−v(h2)。
func Residual(n float64, h [3]float64, d0, d1 []float64) float64 {
	den := math.Pow(h[0], n) - math.Pow(h[2], n)
	if den == 0 {
		return math.Inf(1)
	}
	ratio := (math.Pow(h[1], n) - math.Pow(h[2], n)) / den
	worst := 0.0
	for i := range d1 {
		if r := math.Abs(d1[i] - d0[i]*ratio); r > worst || math.IsNaN(r) {
			worst = r
		}
	}
	scale := math.Max(floats.Norm(d1, math.Inf(1)), math.SmallestNonzeroFloat64)
	r := worst / scale
	if math.IsNaN(r) {
		return math.Inf(1)
	}
	return r
}

// SolveOrder 以 Nelder–Mead 在有界区间内求收敛阶。
// h 为粗到细的间距（至少 3 个），diffs[i] = v_i − v_k（k 为最细）；只使用最细的三个分辨率。
// 残差超出容差、预算或超时耗尽时返回 ConvergenceSearchError（携带最后的阶数与残差）。
func SolveOrder(ctx context.Context, h []float64, diffs [][]float64, opts SolverOptions) (OrderFit, error) {
	if err := opts.Validate(); err != nil {
		return OrderFit{}, err
	}
	opts = opts.withDefaults()
	k := len(h) - 1
	if k < 2 {
		return OrderFit{}, &contract.ConvergenceSearchError{Order: opts.Seed, Tolerance: opts.Tolerance, Reason: fmt.Sprintf("need 3 resolutions, got %d", len(h))}
	}
	if len(diffs) != k {
		return OrderFit{}, fmt.Errorf("solver: %d difference fields for %d resolutions", len(diffs), len(h))
	}
	hs := [3]float64{h[k-2], h[k-1], h[k]}
	if !(hs[0] > hs[1] && hs[1] > hs[2] && hs[2] > 0) {
		return OrderFit{}, &contract.ConvergenceSearchError{Order: opts.Seed, Tolerance: opts.Tolerance, Reason: fmt.Sprintf("spacings %v not strictly decreasing", hs)}
	}
	d0, d1 := diffs[k-2], diffs[k-1]
	if len(d0) != len(d1) || len(d1) == 0 {
		return OrderFit{}, &contract.ConvergenceSearchError{Order: opts.Seed, Tolerance: opts.Tolerance, Reason: "difference fields empty or of unequal length"}
	}
	if floats.Norm(d1, math.Inf(1)) == 0 || floats.Norm(d0, math.Inf(1)) == 0 {
		return OrderFit{}, &contract.ConvergenceSearchError{Order: opts.Seed, Tolerance: opts.Tolerance, Reason: "vanishing differences"}
	}

	lo, hi := opts.Lower, opts.Upper
	// 光滑有界变换 n(u) ∈ [lo, hi]
	orderOf := func(u float64) float64 { return lo + (hi-lo)*(1+math.Sin(u))/2 }
	u0 := math.Asin(2*(opts.Seed-lo)/(hi-lo) - 1)

	problem := optimize.Problem{
		Func: func(x []float64) float64 { return Residual(orderOf(x[0]), hs, d0, d1) },
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		MajorIterations: opts.MaxIterations,
		Runtime:         opts.Timeout,
		Converger:       &optimize.FunctionConverge{Absolute: 1e-14, Iterations: 50},
	}
	res, err := optimize.Minimize(problem, []float64{u0}, settings, &optimize.NelderMead{SimplexSize: 0.5})

	fit := OrderFit{Order: opts.Seed, Residual: math.Inf(1)}
	if res != nil && len(res.X) == 1 {
		fit = OrderFit{
			Order:           orderOf(res.X[0]),
			Residual:        res.F,
			Iterations:      res.MajorIterations,
			FuncEvaluations: res.FuncEvaluations,
			Status:          res.Status.String(),
		}
	}
	if cerr := ctx.Err(); cerr != nil {
		err = cerr
	}
	if err != nil {
		return fit, &contract.ConvergenceSearchError{Order: fit.Order, Residual: fit.Residual, Iterations: fit.Iterations, Tolerance: opts.Tolerance, Reason: "minimization aborted", Err: err}
	}
	if !(fit.Residual <= opts.Tolerance) {
		return fit, &contract.ConvergenceSearchError{Order: fit.Order, Residual: fit.Residual, Iterations: fit.Iterations, Tolerance: opts.Tolerance, Reason: "residual above tolerance (" + fit.Status + ")"}
	}
	return fit, nil
}
