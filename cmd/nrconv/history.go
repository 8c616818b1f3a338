package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "nrconv/internal/config"
	"nrconv/pkg/registry"
)

func (a *app) historyCmd() *cobra.Command {
	var (
		ledgerPath string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "history [flags]",
		Short: "列出 ledger 中最近的收敛分析记录",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cfgpkg.Config{})
			if err != nil {
				return err
			}
			if ledgerPath != "" {
				cfg.Components.Ledger = "sqlite"
				if cfg.Options.Ledger, err = withOption(cfg.Options.Ledger, "path", ledgerPath); err != nil {
					return configErr("ledger options: %w", err)
				}
			}
			name := strings.TrimSpace(cfg.Components.Ledger)
			if name == "" {
				return configErr("history: %w", fmt.Errorf("no ledger configured (use --ledger or components.ledger)"))
			}
			newLedger, ok := registry.Ledger[name]
			if !ok {
				return configErr("history: %w", fmt.Errorf("unknown ledger %q", name))
			}
			l, err := newLedger(cfg.Options.Ledger)
			if err != nil {
				return configErr("ledger: %w", err)
			}
			defer l.Close()
			logger := a.openLogger(cfg.Logging.Level)

			t := logger.Start("ledger", "recent")
			runs, err := l.Recent(cmd.Context(), limit)
			if err != nil {
				return runErr(err)
			}
			t.Finish("recent", int64(len(runs)))

			w := bufio.NewWriter(a.stdout)
			defer w.Flush()
			for _, r := range runs {
				files, _ := json.Marshal(r.Files)
				fmt.Fprintf(w, "%s  %s  t=%g  %s  order=%.6f  residual=%.3g  points=%d  %s\n",
					r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Time, r.Component,
					r.Order, r.Residual, r.Points, files)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&ledgerPath, "ledger", "", "SQLite 运行历史路径（覆盖配置）")
	f.IntVar(&limit, "limit", 20, "最多列出的记录数")
	return cmd
}
