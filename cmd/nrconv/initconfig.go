package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	cfgpkg "nrconv/internal/config"
)

func (a *app) initConfigCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "init-config [dir]",
		Short: "在指定目录生成默认配置与 .env 模板（已存在则不覆盖）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			var (
				b    []byte
				name string
				err  error
			)
			cfg := cfgpkg.DefaultTemplateConfig()
			switch format {
			case "yaml":
				name = "nrconv.yaml"
				b, err = cfgpkg.MarshalYAML(cfg)
			case "json":
				name = "nrconv.json"
				if b, err = json.MarshalIndent(cfg, "", "  "); err == nil {
					b = append(b, '\n')
				}
			default:
				return configErr("--format: %w", fmt.Errorf("unknown format %q (want yaml|json)", format))
			}
			if err != nil {
				return configErr("生成默认配置失败: %w", err)
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return configErr("生成默认配置失败: %w", err)
			}
			path := filepath.Join(dir, name)
			if err := writeNew(path, b); err != nil {
				return configErr("生成默认配置失败: %w", err)
			}
			fmt.Fprintf(a.stdout, "wrote %s\n", path)
			// .env 失败不影响退出码
			if err := writeDotEnv(filepath.Join(dir, ".env")); err != nil {
				fmt.Fprintf(a.stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "配置格式 yaml|json")
	return cmd
}

// writeNew 仅在文件不存在时写入。
func writeNew(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
