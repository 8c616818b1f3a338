package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"nrconv/internal/align"
)

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：Analysis.Time 不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		Concurrency: 1,
		Logging:     Logging{Level: "info"},
		Analysis: Analysis{
			TimeTolerance: 1e-10,
			Component:     "scalar",
			Axis:          "x",
			Epsilon:       align.DefaultEpsilon,
			Artifacts: Artifacts{
				Alpha:    "richardson.alpha.asc",
				True:     "richardson.true.asc",
				SelfConv: "richardson.selfconv.asc",
			},
		},
		Components: Components{
			Reader:    "fs",
			Splitter:  "blocks",
			Decoder:   "cactus",
			Assembler: "snapshots",
			Writer:    "fs",
		},
	}
}

// LoadFile 按扩展名选择格式：.yaml/.yml 为 YAML，其余按 JSON。
func LoadFile(path string) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path, nil)
	default:
		return LoadJSON(path, nil)
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	var cfg Config
	r, closer, err := source(path, raw)
	if err != nil {
		return cfg, err
	}
	if closer != nil {
		defer closer.Close()
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadYAML 解析 YAML：先解为通用树，再转 JSON 走同一严格解码。
func LoadYAML(path string, raw []byte) (Config, error) {
	r, closer, err := source(path, raw)
	if err != nil {
		return Config{}, err
	}
	if closer != nil {
		defer closer.Close()
	}
	var tree any
	if err := yaml.NewDecoder(r).Decode(&tree); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, errors.New("config: empty yaml document")
		}
		return Config{}, err
	}
	js, err := json.Marshal(tree)
	if err != nil {
		return Config{}, fmt.Errorf("config: yaml to json: %w", err)
	}
	return LoadJSON("", js)
}

func source(path string, raw []byte) (io.Reader, io.Closer, error) {
	switch {
	case len(raw) > 0:
		return bytes.NewReader(raw), nil, nil
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return f, f, nil
	default:
		return nil, nil, errors.New("no config source provided")
	}
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if over.Concurrency != 0 {
		out.Concurrency = over.Concurrency
	}
	if strings.TrimSpace(over.Logging.Level) != "" {
		out.Logging.Level = strings.TrimSpace(over.Logging.Level)
	}

	// Analysis
	a, oa := &out.Analysis, over.Analysis
	if oa.Time != nil {
		v := *oa.Time
		a.Time = &v
	}
	if oa.TimeTolerance != 0 {
		a.TimeTolerance = oa.TimeTolerance
	}
	if oa.Component != "" {
		a.Component = oa.Component
	}
	if oa.Axis != "" {
		a.Axis = oa.Axis
	}
	if oa.Epsilon != 0 {
		a.Epsilon = oa.Epsilon
	}
	if oa.Domain != nil {
		d := *oa.Domain
		a.Domain = &d
	}
	if oa.AutoSort != nil {
		v := *oa.AutoSort
		a.AutoSort = &v
	}
	if oa.Solver.Lower != 0 {
		a.Solver.Lower = oa.Solver.Lower
	}
	if oa.Solver.Upper != 0 {
		a.Solver.Upper = oa.Solver.Upper
	}
	if oa.Solver.Seed != 0 {
		a.Solver.Seed = oa.Solver.Seed
	}
	if oa.Solver.MaxIterations != 0 {
		a.Solver.MaxIterations = oa.Solver.MaxIterations
	}
	if oa.Solver.Tolerance != 0 {
		a.Solver.Tolerance = oa.Solver.Tolerance
	}
	if oa.Solver.TimeoutSeconds != 0 {
		a.Solver.TimeoutSeconds = oa.Solver.TimeoutSeconds
	}
	if oa.Artifacts.Alpha != "" {
		a.Artifacts.Alpha = oa.Artifacts.Alpha
	}
	if oa.Artifacts.True != "" {
		a.Artifacts.True = oa.Artifacts.True
	}
	if oa.Artifacts.SelfConv != "" {
		a.Artifacts.SelfConv = oa.Artifacts.SelfConv
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Splitter != "" {
		out.Components.Splitter = over.Components.Splitter
	}
	if over.Components.Decoder != "" {
		out.Components.Decoder = over.Components.Decoder
	}
	if over.Components.Assembler != "" {
		out.Components.Assembler = over.Components.Assembler
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}
	if over.Components.Ledger != "" {
		out.Components.Ledger = over.Components.Ledger
	}

	// Options（完整替换对应键）
	if len(over.Options.Reader) > 0 {
		out.Options.Reader = cloneRaw(over.Options.Reader)
	}
	if len(over.Options.Splitter) > 0 {
		out.Options.Splitter = cloneRaw(over.Options.Splitter)
	}
	if len(over.Options.Decoder) > 0 {
		out.Options.Decoder = cloneRaw(over.Options.Decoder)
	}
	if len(over.Options.Assembler) > 0 {
		out.Options.Assembler = cloneRaw(over.Options.Assembler)
	}
	if len(over.Options.Writer) > 0 {
		out.Options.Writer = cloneRaw(over.Options.Writer)
	}
	if len(over.Options.Ledger) > 0 {
		out.Options.Ledger = cloneRaw(over.Options.Ledger)
	}
	return out
}

// EnvPrefix: 环境变量前缀。
const EnvPrefix = "NRCONV_"

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 支持：INPUTS, CONCURRENCY, LOG_LEVEL, TIME, TIME_TOLERANCE, COMPONENT, AXIS, EPSILON,
// DOMAIN ("min,max"), AUTO_SORT, SOLVER_{LOWER,UPPER,SEED,MAX_ITERATIONS,TOLERANCE,TIMEOUT_SECONDS},
// COMPONENTS_* 以及 OPTIONS_<组件>_JSON（原样 JSON）。
// 未知键忽略；已知键的值无法解析时返回错误。
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key := kv[len(EnvPrefix):eq]
		val := strings.TrimSpace(kv[eq+1:])
		if val == "" {
			continue
		}
		if err := applyEnv(&over, key, val); err != nil {
			return Config{}, fmt.Errorf("env %s%s: %w", EnvPrefix, key, err)
		}
	}
	return over, nil
}

func applyEnv(over *Config, key, val string) error {
	a := &over.Analysis
	var err error
	switch key {
	case "INPUTS":
		over.Inputs = splitComma(val)
	case "CONCURRENCY":
		over.Concurrency, err = strconv.Atoi(val)
	case "LOG_LEVEL":
		over.Logging.Level = val
	case "TIME":
		var v float64
		if v, err = strconv.ParseFloat(val, 64); err == nil {
			a.Time = &v
		}
	case "TIME_TOLERANCE":
		a.TimeTolerance, err = strconv.ParseFloat(val, 64)
	case "COMPONENT":
		a.Component = val
	case "AXIS":
		a.Axis = val
	case "EPSILON":
		a.Epsilon, err = strconv.ParseFloat(val, 64)
	case "DOMAIN":
		var d align.Domain
		if d, err = ParseDomain(val); err == nil {
			a.Domain = &d
		}
	case "AUTO_SORT":
		var b bool
		if b, err = strconv.ParseBool(val); err == nil {
			a.AutoSort = &b
		}
	case "SOLVER_LOWER":
		a.Solver.Lower, err = strconv.ParseFloat(val, 64)
	case "SOLVER_UPPER":
		a.Solver.Upper, err = strconv.ParseFloat(val, 64)
	case "SOLVER_SEED":
		a.Solver.Seed, err = strconv.ParseFloat(val, 64)
	case "SOLVER_MAX_ITERATIONS":
		a.Solver.MaxIterations, err = strconv.Atoi(val)
	case "SOLVER_TOLERANCE":
		a.Solver.Tolerance, err = strconv.ParseFloat(val, 64)
	case "SOLVER_TIMEOUT_SECONDS":
		a.Solver.TimeoutSeconds, err = strconv.ParseFloat(val, 64)
	case "COMPONENTS_READER":
		over.Components.Reader = val
	case "COMPONENTS_SPLITTER":
		over.Components.Splitter = val
	case "COMPONENTS_DECODER":
		over.Components.Decoder = val
	case "COMPONENTS_ASSEMBLER":
		over.Components.Assembler = val
	case "COMPONENTS_WRITER":
		over.Components.Writer = val
	case "COMPONENTS_LEDGER":
		over.Components.Ledger = val
	case "OPTIONS_READER_JSON":
		over.Options.Reader, err = rawJSON(val)
	case "OPTIONS_SPLITTER_JSON":
		over.Options.Splitter, err = rawJSON(val)
	case "OPTIONS_DECODER_JSON":
		over.Options.Decoder, err = rawJSON(val)
	case "OPTIONS_ASSEMBLER_JSON":
		over.Options.Assembler, err = rawJSON(val)
	case "OPTIONS_WRITER_JSON":
		over.Options.Writer, err = rawJSON(val)
	case "OPTIONS_LEDGER_JSON":
		over.Options.Ledger, err = rawJSON(val)
	}
	return err
}

// ParseDomain 解析 "min,max"。
func ParseDomain(s string) (align.Domain, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return align.Domain{}, fmt.Errorf("domain %q: want \"min,max\"", s)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return align.Domain{}, err
	}
	hi, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return align.Domain{}, err
	}
	return align.Domain{Min: lo, Max: hi}, nil
}

func rawJSON(s string) (json.RawMessage, error) {
	if !json.Valid([]byte(s)) {
		return nil, errors.New("invalid json")
	}
	return json.RawMessage(s), nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
