package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"nrconv/internal/diag"
)

// 退出码：0 成功；1 运行失败；3 配置失败（含命令行用法错误）。
const (
	exitOK     = 0
	exitRun    = 1
	exitConfig = 3
)

// exitError 携带退出码。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func configErr(format string, err error) error {
	return &exitError{code: exitConfig, err: fmt.Errorf(format, err)}
}

func runErr(err error) error { return &exitError{code: exitRun, err: err} }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run 执行命令并映射退出码（便于测试）。
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")
	a := &app{stdout: stdout, stderr: stderr, corrID: uuid.NewString()}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	defer a.close()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if !errors.As(err, &ee) {
		// cobra 的旗标/参数错误
		fmt.Fprintf(stderr, "用法错误: %v\n", err)
		return exitConfig
	}
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "%v\n", err)
	}
	if a.logger != nil {
		code := diag.Classify(err)
		a.logger.Error("cli", string(code), "first error", nil)
		if code != diag.CodeUnknown {
			diag.IncError("cli", string(code))
		}
	}
	return ee.code
}

// app 持有全局旗标与运行期资源。
type app struct {
	stdout, stderr io.Writer
	corrID         string

	configPath  string
	logLevel    string
	logStderr   bool
	concurrency int
	status      bool

	logger *diag.Logger
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nrconv",
		Short:         "Cactus ASCII 网格函数解析与 Richardson 自收敛分析",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "配置文件（.json/.yaml）；缺省读取 ./nrconv.yaml 或 ./nrconv.json（若存在）")
	pf.StringVar(&a.logLevel, "log-level", "", "日志级别 debug|info|warn|error（覆盖配置）")
	pf.BoolVar(&a.logStderr, "log-stderr", false, "日志写到 stderr 而非 logs/ 轮转文件")
	pf.IntVar(&a.concurrency, "concurrency", 0, "解析并发度（覆盖配置）")
	pf.BoolVar(&a.status, "status", true, "终端状态提示（stderr）")

	root.AddCommand(
		a.richardsonCmd(),
		a.diffCmd(),
		a.timesCmd(),
		a.crashCmd(),
		a.spacingCmd(),
		a.pointCmd(),
		a.historyCmd(),
		a.initConfigCmd(),
	)
	return root
}

// openLogger 以最终日志级别构造日志器。
func (a *app) openLogger(level string) *diag.Logger {
	if a.logger != nil {
		return a.logger
	}
	if a.logStderr {
		a.logger = diag.NewLoggerTo(a.stderr, a.corrID, level)
	} else {
		a.logger = diag.NewLogger(a.corrID, level)
	}
	return a.logger
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Close()
	}
}
