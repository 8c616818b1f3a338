package config

import (
	"encoding/json"

	"gopkg.in/yaml.v3"

	"nrconv/internal/align"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 三个分辨率目录占位（粗到细），Writer 输出到 ./out 目录；
// - 记录运行历史到 ./out/runs.sqlite；
// - 选项给出全部键与中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	t := 0.0
	autoSort := true
	cfg := Config{
		Inputs:      []string{"runs/h0", "runs/h1", "runs/h2"},
		Concurrency: 4,
		Logging:     d.Logging,
		Analysis:    d.Analysis,
		Components:  d.Components,
	}
	cfg.Analysis.Time = &t
	cfg.Analysis.AutoSort = &autoSort
	cfg.Analysis.Domain = &align.Domain{Min: 0, Max: 1}
	cfg.Analysis.Solver = Solver{Lower: 0.5, Upper: 6.5, Seed: 4, MaxIterations: 400, Tolerance: 1e-2, TimeoutSeconds: 30}
	cfg.Components.Ledger = "sqlite"

	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": ["checkpoints", "SIMFACTORY"],
  "include": ["*.asc"]
}`)
	cfg.Options.Splitter = json.RawMessage(`{
  "comment_prefix": "#",
  "allow_exts": [".asc"]
}`)
	cfg.Options.Decoder = json.RawMessage(`{
  "field": ""
}`)
	// snapshots 装配器无配置项，保持空对象
	cfg.Options.Assembler = json.RawMessage(`{}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "out",
  "prefix": "",
  "atomic": true,
  "overwrite": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	cfg.Options.Ledger = json.RawMessage(`{
  "path": "out/runs.sqlite"
}`)
	return cfg
}

// MarshalYAML 输出块风格 YAML，键顺序与 JSON 字段顺序一致。
func MarshalYAML(cfg Config) ([]byte, error) {
	js, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	// JSON 是合法的 YAML（流风格）；清除风格后按块风格重新编码
	var node yaml.Node
	if err := yaml.Unmarshal(js, &node); err != nil {
		return nil, err
	}
	blockStyle(&node)
	return yaml.Marshal(&node)
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
