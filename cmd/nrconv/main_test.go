package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "nrconv/internal/config"
)

// fixtureDir 返回测试数据的绝对路径（须在 t.Chdir 之前调用）。
func fixtureDir(t *testing.T, parts ...string) string {
	t.Helper()
	p, err := filepath.Abs(filepath.Join(append([]string{"..", "..", "testdata", "fixtures"}, parts...)...))
	require.NoError(t, err)
	return p
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errb bytes.Buffer
	code := run(context.Background(), append([]string{"--status=false"}, args...), &out, &errb)
	return code, out.String(), errb.String()
}

func scalarRuns(t *testing.T) []string {
	return []string{
		fixtureDir(t, "scalar", "h0"),
		fixtureDir(t, "scalar", "h1"),
		fixtureDir(t, "scalar", "h2"),
	}
}

func TestRichardsonAndHistory(t *testing.T) {
	runs := scalarRuns(t)
	dir := t.TempDir()
	t.Chdir(dir)

	ledger := filepath.Join(dir, "out", "runs.sqlite")
	args := append([]string{"richardson", "--time", "0.5", "--out", "out", "--ledger", ledger}, runs...)
	code, out, errs := runCLI(t, args...)
	require.Equal(t, exitOK, code, errs)

	var order float64
	for _, line := range strings.Split(out, "\n") {
		if f := strings.Fields(line); len(f) == 2 && f[0] == "order" {
			v, err := strconv.ParseFloat(f[1], 64)
			require.NoError(t, err)
			order = v
		}
	}
	assert.InDelta(t, 4.0, order, 0.1)
	for _, name := range []string{"richardson.alpha.asc", "richardson.true.asc", "richardson.selfconv.asc"} {
		_, err := os.Stat(filepath.Join(dir, "out", name))
		assert.NoError(t, err, name)
	}

	code, out, errs = runCLI(t, "history", "--ledger", ledger)
	require.Equal(t, exitOK, code, errs)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "order=")
	assert.Contains(t, lines[0], "points=5")
}

func TestRichardsonExitCodes(t *testing.T) {
	runs := scalarRuns(t)
	t.Chdir(t.TempDir())

	t.Run("缺少时间", func(t *testing.T) {
		code, _, errs := runCLI(t, append([]string{"richardson", "--out", "out"}, runs...)...)
		assert.Equal(t, exitConfig, code)
		assert.Contains(t, errs, "配置校验失败")
	})
	t.Run("未知旗标", func(t *testing.T) {
		code, _, errs := runCLI(t, "richardson", "--nope")
		assert.Equal(t, exitConfig, code)
		assert.Contains(t, errs, "用法错误")
	})
	t.Run("分辨率不足", func(t *testing.T) {
		code, _, errs := runCLI(t, "richardson", "--time", "0.5", "--out", "out", runs[0], runs[1])
		assert.Equal(t, exitRun, code)
		assert.Contains(t, errs, "schema mismatch")
	})
	t.Run("不存在的时间", func(t *testing.T) {
		code, _, _ := runCLI(t, append([]string{"richardson", "--time", "0.3", "--out", "out"}, runs...)...)
		assert.Equal(t, exitRun, code)
	})
	t.Run("逆序输入默认修正", func(t *testing.T) {
		code, out, errs := runCLI(t, "richardson", "--time", "0.5", "--out", "out", runs[2], runs[1], runs[0])
		require.Equal(t, exitOK, code, errs)
		assert.Contains(t, out, "input order corrected")
	})
	t.Run("严格顺序", func(t *testing.T) {
		code, _, errs := runCLI(t, "richardson", "--time", "0.5", "--out", "out", "--auto-sort=false", runs[2], runs[1], runs[0])
		assert.Equal(t, exitRun, code)
		assert.Contains(t, errs, "alignment error")
	})
	t.Run("未知分量", func(t *testing.T) {
		code, _, _ := runCLI(t, append([]string{"richardson", "--time", "0.5", "--component", "ww", "--out", "out"}, runs...)...)
		assert.Equal(t, exitConfig, code)
	})
}

func TestInspectCommands(t *testing.T) {
	runs := scalarRuns(t)
	crash := fixtureDir(t, "crash", "alp.x.asc")
	coarse := filepath.Join(runs[0], "phi.x.asc")
	fine := filepath.Join(runs[1], "phi.x.asc")
	t.Chdir(t.TempDir())

	t.Run("times", func(t *testing.T) {
		code, out, errs := runCLI(t, append([]string{"times"}, runs...)...)
		require.Equal(t, exitOK, code, errs)
		assert.Contains(t, out, "common\t0 0.5\n")
	})
	t.Run("crash", func(t *testing.T) {
		code, out, errs := runCLI(t, "crash", crash)
		require.Equal(t, exitOK, code, errs)
		assert.Contains(t, out, "alp.x.asc 0.25 crashed")
	})
	t.Run("diff 同文件归约为零", func(t *testing.T) {
		code, out, errs := runCLI(t, "diff", "--abs", "--reduce", "max", "0", "0", coarse, coarse)
		require.Equal(t, exitOK, code, errs)
		assert.Equal(t, "0\n", out)
	})
	t.Run("diff 表", func(t *testing.T) {
		code, out, errs := runCLI(t, "diff", "0", "8", coarse, coarse)
		require.Equal(t, exitOK, code, errs)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		assert.Equal(t, "# iteration1 = 0, time1 = 0", lines[0])
		assert.Equal(t, "# iteration2 = 8, time2 = 0.5", lines[1])
		assert.Len(t, lines, 2+5)
	})
	t.Run("diff 不同分辨率", func(t *testing.T) {
		code, _, _ := runCLI(t, "diff", "0", "0", coarse, fine)
		assert.Equal(t, exitRun, code)
	})
	t.Run("diff 非法迭代", func(t *testing.T) {
		code, _, _ := runCLI(t, "diff", "a", "0", coarse, coarse)
		assert.Equal(t, exitConfig, code)
	})
	t.Run("spacing", func(t *testing.T) {
		code, out, errs := runCLI(t, "spacing", coarse)
		require.Equal(t, exitOK, code, errs)
		assert.Contains(t, out, "# iteration 0 time 0 h 0.25\n")
		assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 1+5)
	})
	t.Run("point", func(t *testing.T) {
		code, out, errs := runCLI(t, "point", "--index", "0,0,0", coarse)
		require.Equal(t, exitOK, code, errs)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 3)
		f := strings.Fields(lines[1])
		require.Len(t, f, 2)
		v, err := strconv.ParseFloat(f[1], 64)
		require.NoError(t, err)
		assert.InDelta(t, 2*0.25*0.25*0.25*0.25, v, 1e-12)
	})
	t.Run("point 按位置", func(t *testing.T) {
		code, out, errs := runCLI(t, "point", "--position", "0.5", coarse)
		require.Equal(t, exitOK, code, errs)
		assert.Contains(t, out, "index 2 0 0")
	})
	t.Run("point 缺少下标", func(t *testing.T) {
		code, _, _ := runCLI(t, "point", coarse)
		assert.Equal(t, exitConfig, code)
	})
}

func TestInitConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	code, out, errs := runCLI(t, "init-config", "cfg")
	require.Equal(t, exitOK, code, errs)
	assert.Contains(t, out, filepath.Join("cfg", "nrconv.yaml"))

	cfg, err := cfgpkg.LoadFile(filepath.Join(dir, "cfg", "nrconv.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Components.Ledger)
	_, err = os.Stat(filepath.Join(dir, "cfg", ".env"))
	assert.NoError(t, err)

	// 不覆盖已存在的配置
	code, _, _ = runCLI(t, "init-config", "cfg")
	assert.Equal(t, exitConfig, code)

	code, _, errs = runCLI(t, "init-config", "--format", "json", "cfg")
	require.Equal(t, exitOK, code, errs)
	_, err = cfgpkg.LoadFile(filepath.Join(dir, "cfg", "nrconv.json"))
	assert.NoError(t, err)

	code, _, _ = runCLI(t, "init-config", "--format", "toml", "cfg")
	assert.Equal(t, exitConfig, code)
}
