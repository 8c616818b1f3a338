package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "nrconv/internal/config"
	"nrconv/internal/compare"
	"nrconv/internal/grid"
	"nrconv/internal/inspect"
	"nrconv/internal/lattice"
	"nrconv/internal/pipeline"
	"nrconv/internal/richardson"
	"nrconv/internal/tensor"
	"nrconv/pkg/contract"
)

// parseInputs 按配置构造解析组件并解析 roots（不构造 writer/ledger）。
func (a *app) parseInputs(cmd *cobra.Command, roots []string) ([]contract.Dataset, error) {
	cfg, err := a.loadConfig(cfgpkg.Config{Inputs: roots})
	if err != nil {
		return nil, err
	}
	cfg.Components.Ledger = ""
	if err := cfgpkg.ValidateComponents(cfg); err != nil {
		return nil, configErr("配置校验失败: %w", err)
	}
	comp, err := cfgpkg.BuildParseComponents(cfg)
	if err != nil {
		return nil, configErr("装配失败: %w", err)
	}
	logger := a.openLogger(cfg.Logging.Level)
	ds, err := pipeline.Parse(cmd.Context(), comp, cfg.Inputs, cfg.Concurrency, logger)
	if err != nil {
		return nil, runErr(err)
	}
	return ds, nil
}

func axisFlag(s string) (int, error) {
	ax, err := cfgpkg.ParseAxis(s)
	if err != nil {
		return 0, configErr("--axis: %w", err)
	}
	return ax, nil
}

func (a *app) diffCmd() *cobra.Command {
	var (
		abs               bool
		reduce, component string
		axis              string
	)
	cmd := &cobra.Command{
		Use:   "diff [flags] <iteration1> <iteration2> <file1> <file2>",
		Short: "两个文件在给定迭代处的逐点场差",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			it1, err1 := strconv.Atoi(args[0])
			it2, err2 := strconv.Atoi(args[1])
			if err1 != nil || err2 != nil {
				return configErr("iteration: %w", fmt.Errorf("%q %q must be integers", args[0], args[1]))
			}
			opts := compare.Options{Abs: abs}
			if component != "" {
				c, err := tensor.ParseComponent(component)
				if err != nil {
					return configErr("--component: %w", err)
				}
				opts.Component = &c
			}
			var ext compare.Extremum
			if reduce != "" {
				var err error
				if ext, err = compare.ParseExtremum(reduce); err != nil {
					return configErr("--reduce: %w", err)
				}
			}
			ax, err := axisFlag(axis)
			if err != nil {
				return err
			}

			ds, err := a.parseInputs(cmd, args[2:])
			if err != nil {
				return err
			}
			if len(ds) != 2 {
				return runErr(fmt.Errorf("diff: want 2 files, got %d", len(ds)))
			}
			s1, err := grid.SnapshotAtIteration(ds[0], it1)
			if err != nil {
				return runErr(err)
			}
			s2, err := grid.SnapshotAtIteration(ds[1], it2)
			if err != nil {
				return runErr(err)
			}
			d, err := compare.Diff(s1, s2, opts)
			if err != nil {
				return runErr(err)
			}
			w := bufio.NewWriter(a.stdout)
			defer w.Flush()
			if reduce != "" {
				v, err := compare.Reduce(d.Values, ext)
				if err != nil {
					return runErr(err)
				}
				fmt.Fprintln(w, strconv.FormatFloat(v, 'g', 17, 64))
				return nil
			}
			fmt.Fprintf(w, "# iteration1 = %d, time1 = %g\n", d.IterationA, d.TimeA)
			fmt.Fprintf(w, "# iteration2 = %d, time2 = %g\n", d.IterationB, d.TimeB)
			coords := make([]float64, len(d.Positions))
			for i, p := range d.Positions {
				if ax < len(p) {
					coords[i] = p[ax]
				}
			}
			if err := richardson.WriteTable(w, coords, d.Values); err != nil {
				return runErr(err)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&abs, "abs", false, "输出 |Δ|")
	f.StringVar(&reduce, "reduce", "", "归约为单个值：max|min")
	f.StringVar(&component, "component", "", "张量分量（缺省取 6 个槽位 |Δ| 最大值）")
	f.StringVar(&axis, "axis", "x", "输出坐标轴 x|y|z")
	return cmd
}

func (a *app) timesCmd() *cobra.Command {
	var tol float64
	cmd := &cobra.Command{
		Use:   "times [flags] <run>...",
		Short: "列出各运行输出的坐标时间及其公共时间",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.parseInputs(cmd, args)
			if err != nil {
				return err
			}
			w := bufio.NewWriter(a.stdout)
			defer w.Flush()
			for _, d := range ds {
				fmt.Fprintf(w, "%s\t%s\n", d.Source, joinFloats(grid.Times(d)))
			}
			fmt.Fprintf(w, "common\t%s\n", joinFloats(inspect.CommonTimes(ds, tol)))
			return nil
		},
	}
	cmd.Flags().Float64Var(&tol, "tolerance", 1e-10, "时间相等的绝对容差")
	return cmd
}

func (a *app) crashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crash <file>...",
		Short: "报告每个运行首次出现 NaN/Inf 之前的坐标时间",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.parseInputs(cmd, args)
			if err != nil {
				return err
			}
			w := bufio.NewWriter(a.stdout)
			defer w.Flush()
			for _, d := range ds {
				c, err := inspect.CrashTime(d)
				if err != nil {
					return runErr(err)
				}
				state := "finite"
				if c.Crashed {
					state = "crashed"
				}
				fmt.Fprintf(w, "%s %g %s\n", c.Source, c.Time, state)
			}
			return nil
		},
	}
}

func (a *app) spacingCmd() *cobra.Command {
	var (
		axis      string
		iteration int
		all       bool
	)
	cmd := &cobra.Command{
		Use:   "spacing [flags] <file>",
		Short: "逐点局部网格间距（坐标 h）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ax, err := axisFlag(axis)
			if err != nil {
				return err
			}
			ds, err := a.parseInputs(cmd, args)
			if err != nil {
				return err
			}
			if len(ds) != 1 {
				return runErr(fmt.Errorf("spacing: want 1 file, got %d", len(ds)))
			}
			d := ds[0]
			var snaps []contract.Snapshot
			var maps [][]lattice.LocalSpacing
			if all {
				if maps, err = lattice.DatasetSpacingMaps(d, ax); err != nil {
					return runErr(err)
				}
				snaps = d.Snapshots
			} else {
				s := contract.Snapshot{}
				if cmd.Flags().Changed("iteration") {
					s, err = grid.SnapshotAtIteration(d, iteration)
				} else if d.Len() > 0 {
					s = d.Snapshots[0]
				} else {
					err = &contract.SchemaMismatchError{What: "spacing", Detail: fmt.Sprintf("%s has no snapshots", d.Source)}
				}
				if err != nil {
					return runErr(err)
				}
				m, err := lattice.SnapshotSpacingMap(s, ax)
				if err != nil {
					return runErr(err)
				}
				snaps, maps = []contract.Snapshot{s}, [][]lattice.LocalSpacing{m}
			}
			w := bufio.NewWriter(a.stdout)
			defer w.Flush()
			for i, m := range maps {
				h, err := lattice.Spacing(snaps[i])
				if err != nil {
					return runErr(err)
				}
				fmt.Fprintf(w, "# iteration %d time %g h %.17g\n", snaps[i].Iteration, snaps[i].Time, h)
				coords := make([]float64, len(m))
				hs := make([]float64, len(m))
				for k, ls := range m {
					coords[k], hs[k] = ls.Coord, ls.H
				}
				if err := richardson.WriteTable(w, coords, hs); err != nil {
					return runErr(err)
				}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&axis, "axis", "x", "坐标轴 x|y|z")
	f.IntVar(&iteration, "iteration", 0, "选取的迭代（缺省为首个快照）")
	f.BoolVar(&all, "all", false, "输出每个快照的间距图")
	return cmd
}

func (a *app) pointCmd() *cobra.Command {
	var index, position, component string
	cmd := &cobra.Command{
		Use:   "point [flags] <file>",
		Short: "单个格点的分量随时间变化（time value）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (index == "") == (position == "") {
				return configErr("point: %w", fmt.Errorf("exactly one of --index or --position is required"))
			}
			comp, err := tensor.ParseComponent(component)
			if err != nil {
				return configErr("--component: %w", err)
			}
			ds, err := a.parseInputs(cmd, args)
			if err != nil {
				return err
			}
			if len(ds) != 1 || ds[0].Len() == 0 {
				return runErr(fmt.Errorf("point: want 1 non-empty file, got %d", len(ds)))
			}
			d := ds[0]
			var idx contract.GridIndex
			if index != "" {
				v, err := parseInts(index)
				if err != nil || len(v) != 3 {
					return configErr("--index: %w", fmt.Errorf("%q: want \"ix,iy,iz\"", index))
				}
				idx = contract.GridIndex{v[0], v[1], v[2]}
			} else {
				pos, err := parseFloats(position)
				if err != nil {
					return configErr("--position: %w", err)
				}
				// 省略的坐标分量补零（1D 输出中 y、z 为 0）
				if s0 := d.Snapshots[0]; s0.Len() > 0 {
					for len(pos) < len(s0.Records[0].Position) {
						pos = append(pos, 0)
					}
				}
				r, ok := grid.PointByPosition(d.Snapshots[0], pos, 1e-12)
				if !ok {
					return runErr(&contract.SchemaMismatchError{What: "position", Detail: fmt.Sprintf("%v not on grid of %s", pos, d.Source)})
				}
				idx = r.Index
			}
			h, err := grid.HistoryAtPoint(d, idx, comp)
			if err != nil {
				return runErr(err)
			}
			w := bufio.NewWriter(a.stdout)
			defer w.Flush()
			fmt.Fprintf(w, "# %s index %d %d %d component %s\n", d.Source, idx[0], idx[1], idx[2], comp)
			if err := richardson.WriteTable(w, h.Times, h.Values); err != nil {
				return runErr(err)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&index, "index", "", `格点下标 "ix,iy,iz"`)
	f.StringVar(&position, "position", "", `物理坐标 "x[,y[,z]]"（在首个快照中查找）`)
	f.StringVar(&component, "component", "scalar", "分量")
	return cmd
}

func joinFloats(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, p := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, p := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
