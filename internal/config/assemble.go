package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"nrconv/internal/diag"
	"nrconv/internal/pipeline"
	"nrconv/internal/richardson"
	"nrconv/internal/tensor"
	"nrconv/pkg/registry"
)

// ParseAxis: "x"|"y"|"z"（或 "0".."2"）→ 轴下标。
func ParseAxis(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "x", "0":
		return 0, nil
	case "y", "1":
		return 1, nil
	case "z", "2":
		return 2, nil
	}
	return 0, fmt.Errorf("axis %q: want x, y or z", s)
}

// SolverOptions 将配置转为求解参数（0 值由求解器取默认）。
func (s Solver) SolverOptions() richardson.SolverOptions {
	return richardson.SolverOptions{
		Lower:         s.Lower,
		Upper:         s.Upper,
		Seed:          s.Seed,
		MaxIterations: s.MaxIterations,
		Tolerance:     s.Tolerance,
		Timeout:       time.Duration(s.TimeoutSeconds * float64(time.Second)),
	}
}

// ValidateComponents 仅校验输入与组件名（供不做收敛分析的子命令使用）。
func ValidateComponents(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	dash := false
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return errors.New("config: input path cannot be empty")
		}
		if strings.TrimSpace(r) == "-" {
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if !diag.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("config: logging.level %q unknown", cfg.Logging.Level)
	}
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Splitter, d.Splitter); registry.Splitter[name] == nil {
		return fmt.Errorf("config: splitter %q not registered", name)
	}
	if name := effName(cfg.Components.Decoder, d.Decoder); registry.Decoder[name] == nil {
		return fmt.Errorf("config: decoder %q not registered", name)
	}
	if name := effName(cfg.Components.Assembler, d.Assembler); registry.Assembler[name] == nil {
		return fmt.Errorf("config: assembler %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	if name := cfg.Components.Ledger; name != "" && registry.Ledger[name] == nil {
		return fmt.Errorf("config: ledger %q not registered", name)
	}
	return nil
}

// Validate 对最小必要边界做静态校验。
func Validate(cfg Config) error {
	if err := ValidateComponents(cfg); err != nil {
		return err
	}
	if len(cfg.Inputs) == 1 && strings.TrimSpace(cfg.Inputs[0]) == "-" {
		return errors.New("config: richardson analysis needs file inputs, not stdin")
	}
	a := cfg.Analysis
	if a.Time == nil {
		return errors.New("config: analysis.time not set")
	}
	if math.IsNaN(*a.Time) || math.IsInf(*a.Time, 0) {
		return errors.New("config: analysis.time must be finite")
	}
	if a.TimeTolerance < 0 {
		return errors.New("config: analysis.time_tolerance must be >= 0")
	}
	if _, err := tensor.ParseComponent(a.Component); err != nil {
		return fmt.Errorf("config: analysis.component: %w", err)
	}
	if _, err := ParseAxis(a.Axis); err != nil {
		return fmt.Errorf("config: analysis.%w", err)
	}
	if a.Epsilon < 0 {
		return errors.New("config: analysis.epsilon must be >= 0")
	}
	if a.Domain != nil && !(a.Domain.Min < a.Domain.Max) {
		return fmt.Errorf("config: analysis.domain [%g, %g] must satisfy min < max", a.Domain.Min, a.Domain.Max)
	}
	if a.Solver.MaxIterations < 0 || a.Solver.TimeoutSeconds < 0 || a.Solver.Tolerance < 0 {
		return errors.New("config: analysis.solver values must be >= 0")
	}
	if err := a.Solver.SolverOptions().Validate(); err != nil {
		return fmt.Errorf("config: analysis.%w", err)
	}
	return nil
}

// BuildComponents 按注册表构造组件；严格 Options 解析在工厂层进行。
func BuildComponents(cfg Config) (pipeline.Components, error) {
	comp, err := BuildParseComponents(cfg)
	if err != nil {
		return pipeline.Components{}, err
	}
	d := Defaults().Components
	if comp.Writer, err = registry.Writer[effName(cfg.Components.Writer, d.Writer)](cfg.Options.Writer); err != nil {
		return pipeline.Components{}, fmt.Errorf("writer options: %w", err)
	}
	if name := cfg.Components.Ledger; name != "" {
		if comp.Ledger, err = registry.Ledger[name](cfg.Options.Ledger); err != nil {
			return pipeline.Components{}, fmt.Errorf("ledger options: %w", err)
		}
	}
	return comp, nil
}

// BuildParseComponents 仅构造解析所需的 Reader/Splitter/Decoder/Assembler（只读命令使用）。
func BuildParseComponents(cfg Config) (pipeline.Components, error) {
	d := Defaults().Components
	var comp pipeline.Components
	var err error
	if comp.Reader, err = registry.Reader[effName(cfg.Components.Reader, d.Reader)](cfg.Options.Reader); err != nil {
		return pipeline.Components{}, fmt.Errorf("reader options: %w", err)
	}
	if comp.Splitter, err = registry.Splitter[effName(cfg.Components.Splitter, d.Splitter)](cfg.Options.Splitter); err != nil {
		return pipeline.Components{}, fmt.Errorf("splitter options: %w", err)
	}
	if comp.Decoder, err = registry.Decoder[effName(cfg.Components.Decoder, d.Decoder)](cfg.Options.Decoder); err != nil {
		return pipeline.Components{}, fmt.Errorf("decoder options: %w", err)
	}
	if comp.Assembler, err = registry.Assembler[effName(cfg.Components.Assembler, d.Assembler)](cfg.Options.Assembler); err != nil {
		return pipeline.Components{}, fmt.Errorf("assembler options: %w", err)
	}
	return comp, nil
}

// Assemble 构造 Components 与 Settings。调用方负责关闭 Components.Ledger。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	comp, err := BuildComponents(cfg)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	a := cfg.Analysis
	c, _ := tensor.ParseComponent(a.Component)
	axis, _ := ParseAxis(a.Axis)
	set := pipeline.Settings{
		Inputs:        cloneStrings(cfg.Inputs),
		Concurrency:   cfg.Concurrency,
		Time:          *a.Time,
		TimeTolerance: a.TimeTolerance,
		Component:     c,
		Axis:          axis,
		Epsilon:       a.Epsilon,
		Solver:        a.Solver.SolverOptions(),
		StrictOrder:   a.AutoSort != nil && !*a.AutoSort,
		Artifacts: pipeline.Artifacts{
			Alpha:    a.Artifacts.Alpha,
			True:     a.Artifacts.True,
			SelfConv: a.Artifacts.SelfConv,
		},
	}
	if a.Domain != nil {
		d := *a.Domain
		set.Domain = &d
	}
	return comp, set, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
