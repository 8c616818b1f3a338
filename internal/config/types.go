package config

import (
	"encoding/json"

	"nrconv/internal/align"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON/YAML 使用 snake_case；未知字段在解析期失败。
type Config struct {
	// Inputs: 每项展开为一个分辨率的数据文件，粗到细。
	Inputs      []string `json:"inputs"`
	Concurrency int      `json:"concurrency"`
	Logging     Logging  `json:"logging"`
	Analysis    Analysis `json:"analysis"`

	// 组件名选择（空则使用默认名；ledger 为空表示不记录历史）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Analysis: 自收敛分析参数。
type Analysis struct {
	// Time: 选取的坐标时间（必需）。
	Time          *float64 `json:"time"`
	TimeTolerance float64  `json:"time_tolerance"`
	// Component: "scalar" 或张量下标（"xx"、"0,1"）。
	Component string `json:"component"`
	// Axis: "x" | "y" | "z"。
	Axis    string        `json:"axis"`
	Epsilon float64       `json:"epsilon"`
	Domain  *align.Domain `json:"domain"`
	// AutoSort: 按实测 h 修正输入顺序；未设置时为 true，false 时乱序即失败。
	AutoSort  *bool     `json:"auto_sort"`
	Solver    Solver    `json:"solver"`
	Artifacts Artifacts `json:"artifacts"`
}

// Solver: 收敛阶搜索参数；0 取默认。
type Solver struct {
	Lower          float64 `json:"lower"`
	Upper          float64 `json:"upper"`
	Seed           float64 `json:"seed"`
	MaxIterations  int     `json:"max_iterations"`
	Tolerance      float64 `json:"tolerance"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

// Artifacts: 输出工件名。
type Artifacts struct {
	Alpha    string `json:"alpha"`
	True     string `json:"true"`
	SelfConv string `json:"selfconv"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader    string `json:"reader"`
	Splitter  string `json:"splitter"`
	Decoder   string `json:"decoder"`
	Assembler string `json:"assembler"`
	Writer    string `json:"writer"`
	Ledger    string `json:"ledger"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader    json.RawMessage `json:"reader"`
	Splitter  json.RawMessage `json:"splitter"`
	Decoder   json.RawMessage `json:"decoder"`
	Assembler json.RawMessage `json:"assembler"`
	Writer    json.RawMessage `json:"writer"`
	Ledger    json.RawMessage `json:"ledger"`
}
