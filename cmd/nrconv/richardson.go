package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "nrconv/internal/config"
	"nrconv/internal/diag"
	"nrconv/internal/pipeline"
)

var pipelineRun = pipeline.Run

func (a *app) richardsonCmd() *cobra.Command {
	var (
		tm, eps, tol, timeout float64
		component, axis       string
		domain, outDir        string
		ledgerPath            string
		maxIter               int
		autoSort              bool
	)
	cmd := &cobra.Command{
		Use:   "richardson [flags] <coarse> <medium> <fine> [finer...]",
		Short: "三个及以上分辨率的自收敛分析：收敛阶、误差系数 α 与外推解",
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			var over cfgpkg.Config
			over.Inputs = args
			f := cmd.Flags()
			if f.Changed("time") {
				over.Analysis.Time = &tm
			}
			over.Analysis.Component = component
			over.Analysis.Axis = axis
			over.Analysis.Epsilon = eps
			over.Analysis.Solver.Tolerance = tol
			over.Analysis.Solver.MaxIterations = maxIter
			over.Analysis.Solver.TimeoutSeconds = timeout
			if f.Changed("auto-sort") {
				over.Analysis.AutoSort = &autoSort
			}
			if domain != "" {
				d, err := cfgpkg.ParseDomain(domain)
				if err != nil {
					return configErr("--domain: %w", err)
				}
				over.Analysis.Domain = &d
			}

			cfg, err := a.loadConfig(over)
			if err != nil {
				return err
			}
			if outDir != "" {
				if cfg.Options.Writer, err = withOption(cfg.Options.Writer, "output_dir", outDir); err != nil {
					return configErr("writer options: %w", err)
				}
			}
			if ledgerPath != "" {
				cfg.Components.Ledger = "sqlite"
				if cfg.Options.Ledger, err = withOption(cfg.Options.Ledger, "path", ledgerPath); err != nil {
					return configErr("ledger options: %w", err)
				}
			}
			if err := cfgpkg.Validate(cfg); err != nil {
				a.dumpConfig(cfg)
				return configErr("配置校验失败: %w", err)
			}
			logger := a.openLogger(cfg.Logging.Level)
			if err := preflightOutputDir(cfg); err != nil {
				return configErr("输出目录不可写或无法创建: %w", err)
			}
			comp, set, err := cfgpkg.Assemble(cfg)
			if err != nil {
				return configErr("装配失败: %w", err)
			}
			if comp.Ledger != nil {
				defer comp.Ledger.Close()
			}

			term := diag.NewTerminal(a.stderr, a.status)
			diag.SetTerminal(term)
			defer diag.SetTerminal(nil)

			logger.DebugStart("config", "effective", "", map[string]string{
				"inputs":    strings.Join(cfg.Inputs, ","),
				"time":      fmt.Sprintf("%g", set.Time),
				"component": set.Component.String(),
				"axis":      fmt.Sprintf("%d", set.Axis),
				"ledger":    cfg.Components.Ledger,
			})

			rep, err := pipelineRun(cmd.Context(), comp, set, logger)
			if err != nil {
				diag.IncOp("pipeline", "error", "error")
				return runErr(err)
			}
			diag.IncOp("pipeline", "finish", "success")
			diag.ObserveDuration("pipeline", "finish", time.Since(start))
			a.printReport(rep, cfg)
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&tm, "time", 0, "选取的坐标时间（必需，除非配置中已给出）")
	f.StringVar(&component, "component", "", `分量："scalar"、"xx"…"zz" 或 "i,j"`)
	f.StringVar(&axis, "axis", "", "剖面坐标轴 x|y|z")
	f.StringVar(&domain, "domain", "", `轴坐标区间 "min,max"（剔除边界点）`)
	f.Float64Var(&eps, "epsilon", 0, "位置匹配容差")
	f.Float64Var(&tol, "tolerance", 0, "收敛阶搜索的相对残差容差")
	f.IntVar(&maxIter, "max-iterations", 0, "收敛阶搜索迭代上限")
	f.Float64Var(&timeout, "timeout", 0, "收敛阶搜索超时（秒）")
	f.BoolVar(&autoSort, "auto-sort", true, "按实测网格间距修正输入顺序；=false 时乱序即失败")
	f.StringVar(&outDir, "out", "", "输出目录（覆盖 writer.output_dir）")
	f.StringVar(&ledgerPath, "ledger", "", "SQLite 运行历史路径（启用 ledger）")
	return cmd
}

func (a *app) printReport(rep pipeline.Report, cfg cfgpkg.Config) {
	r := rep.Result
	fmt.Fprintf(a.stdout, "run        %s\n", rep.RunID)
	for i, src := range r.Sources {
		fmt.Fprintf(a.stdout, "h[%d]       %.10g  %s\n", i, r.Spacings[i], src)
	}
	if rep.Reordered {
		fmt.Fprintln(a.stdout, "note       input order corrected to coarsest-first")
	}
	fmt.Fprintf(a.stdout, "order      %.6f\n", r.Fit.Order)
	fmt.Fprintf(a.stdout, "residual   %.3g\n", r.Fit.Residual)
	fmt.Fprintf(a.stdout, "iterations %d\n", r.Fit.Iterations)
	fmt.Fprintf(a.stdout, "points     %d\n", len(r.Positions))
	var wopts struct {
		OutputDir string `json:"output_dir"`
		Prefix    string `json:"prefix"`
	}
	_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	for _, id := range rep.Written {
		fmt.Fprintf(a.stdout, "wrote      %s\n", filepath.Join(wopts.OutputDir, wopts.Prefix+string(id)))
	}
}
