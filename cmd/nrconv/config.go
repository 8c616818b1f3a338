package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cfgpkg "nrconv/internal/config"
)

// defaultConfigFiles: 未指定 --config 时按序查找。
var defaultConfigFiles = []string{"nrconv.yaml", "nrconv.yml", "nrconv.json"}

// loadConfig 分层合并：Defaults → 文件 → ENV → CLI。
func (a *app) loadConfig(over cfgpkg.Config) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()

	path := a.configPath
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		for _, p := range defaultConfigFiles {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"); s != "" {
		base, err := cfgpkg.LoadJSON("", []byte(s))
		if err != nil {
			return cfg, configErr("配置解析失败: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	} else if path != "" {
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfg, configErr("配置解析失败: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}

	env, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, configErr("环境变量解析失败: %w", err)
	}
	cfg = cfgpkg.Merge(cfg, env)

	if a.concurrency > 0 {
		over.Concurrency = a.concurrency
	}
	if a.logLevel != "" {
		over.Logging.Level = a.logLevel
	}
	return cfgpkg.Merge(cfg, over), nil
}

// withOption 在原样 JSON 选项上设置单个键，保留其余键。
func withOption(raw json.RawMessage, key string, val any) (json.RawMessage, error) {
	m := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		if m == nil {
			m = map[string]any{}
		}
	}
	m[key] = val
	return json.Marshal(m)
}

func (a *app) dumpConfig(c cfgpkg.Config) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(a.stderr, "有效配置:\n%s\n", b)
}

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export "；
// - 仅按首个 '=' 分割；若 value 被成对引号包裹则去除外层引号；
// - 不覆盖已存在的环境变量。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if len(val) >= 2 && (val[0] == '\'' || val[0] == '"') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

// envTemplate: init-config 生成的 .env 模板键。
var envTemplate = []struct{ section, keys string }{
	{"配置来源（可二选一）", "CONFIG_FILE CONFIG_JSON"},
	{"运行参数覆盖", "INPUTS CONCURRENCY LOG_LEVEL"},
	{"分析参数", "TIME TIME_TOLERANCE COMPONENT AXIS EPSILON DOMAIN AUTO_SORT"},
	{"收敛阶搜索", "SOLVER_LOWER SOLVER_UPPER SOLVER_SEED SOLVER_MAX_ITERATIONS SOLVER_TOLERANCE SOLVER_TIMEOUT_SECONDS"},
	{"组件选择", "COMPONENTS_READER COMPONENTS_SPLITTER COMPONENTS_DECODER COMPONENTS_ASSEMBLER COMPONENTS_WRITER COMPONENTS_LEDGER"},
	{"组件选项（原样 JSON）", "OPTIONS_READER_JSON OPTIONS_SPLITTER_JSON OPTIONS_DECODER_JSON OPTIONS_ASSEMBLER_JSON OPTIONS_WRITER_JSON OPTIONS_LEDGER_JSON"},
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	var b strings.Builder
	b.WriteString("# nrconv .env 模板（由 init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n")
	for _, sec := range envTemplate {
		fmt.Fprintf(&b, "\n# %s\n", sec.section)
		for _, k := range strings.Fields(sec.keys) {
			b.WriteString(cfgpkg.EnvPrefix + k + "=\n")
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}

// preflightOutputDir: fs writer 启动前检查输出目录可写性。
// 目录存在时尝试创建并删除临时文件；不存在时检查父目录。
func preflightOutputDir(cfg cfgpkg.Config) error {
	name := cfg.Components.Writer
	if strings.TrimSpace(name) == "" {
		name = cfgpkg.Defaults().Components.Writer
	}
	if name != "fs" {
		return nil
	}
	var wopts struct {
		OutputDir string `json:"output_dir"`
	}
	if len(cfg.Options.Writer) > 0 {
		_ = json.Unmarshal(cfg.Options.Writer, &wopts)
	}
	dir := strings.TrimSpace(wopts.OutputDir)
	if dir == "" {
		// 未指定时由装配阶段报错
		return nil
	}
	if st, err := os.Stat(dir); err == nil {
		if !st.IsDir() {
			return fmt.Errorf("路径存在但不是目录: %s", dir)
		}
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	} else if !os.IsNotExist(err) {
		return err
	}
	parent := filepath.Dir(dir)
	pst, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if !pst.IsDir() {
		return fmt.Errorf("父路径不是目录: %s", parent)
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	return os.RemoveAll(tmpd)
}
