package diag

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// 进程内指标：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}（累计）

var (
	metricsMu sync.Mutex
	opTotal   = map[string]int64{}
	errTotal  = map[string]int64{}
	durTotal  = map[string]int64{}
)

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	metricsMu.Lock()
	opTotal[comp+"/"+stage+"/"+result]++
	metricsMu.Unlock()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	metricsMu.Lock()
	errTotal[comp+"/"+code]++
	metricsMu.Unlock()
}

// ObserveDuration 记录阶段耗时。
func ObserveDuration(comp, stage string, d time.Duration) {
	metricsMu.Lock()
	durTotal[comp+"/"+stage] += d.Milliseconds()
	metricsMu.Unlock()
}

// Metrics 为某一时刻的指标拷贝。
type Metrics struct {
	Ops        map[string]int64
	Errors     map[string]int64
	DurationMS map[string]int64
}

// Snapshot 返回当前指标的拷贝。
func Snapshot() Metrics {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return Metrics{Ops: clone(opTotal), Errors: clone(errTotal), DurationMS: clone(durTotal)}
}

// Summary 汇总为日志键值：成功/失败操作数、分类错误总数及各错误码计数。
func (m Metrics) Summary() map[string]string {
	var okN, errN, codes int64
	for k, v := range m.Ops {
		switch {
		case strings.HasSuffix(k, "/success"):
			okN += v
		case strings.HasSuffix(k, "/error"):
			errN += v
		}
	}
	kv := map[string]string{}
	for k, v := range m.Errors {
		codes += v
		kv["error:"+k] = strconv.FormatInt(v, 10)
	}
	kv["ops_success"] = strconv.FormatInt(okN, 10)
	kv["ops_error"] = strconv.FormatInt(errN, 10)
	kv["errors"] = strconv.FormatInt(codes, 10)
	return kv
}

// ResetMetrics 清零（测试用）。
func ResetMetrics() {
	metricsMu.Lock()
	opTotal, errTotal, durTotal = map[string]int64{}, map[string]int64{}, map[string]int64{}
	metricsMu.Unlock()
}

func clone(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
