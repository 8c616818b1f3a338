package diag

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 为结构化日志器：zap JSON 编码，单行写入轮转文件或任意 io.Writer。
// 事件字段固定：level/ts/corr_id/comp/stage/msg，可选 code/dur_ms/count/file_id/kv。
type Logger struct {
	z     *zap.Logger
	sink  io.Closer
	level zapcore.Level
}

// NewLogger 将日志写入 logs/nrconv-current.txt，10 MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	sink := NewRotatingFile("logs", 10*1024*1024)
	l := NewLoggerTo(sink, corrID, level)
	l.sink = sink
	return l
}

// NewLoggerTo 写入 w（测试或 stderr）。
func NewLoggerTo(w io.Writer, corrID, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl := parseLevel(strings.TrimSpace(level))
	enc := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.RFC3339),
		EncodeDuration: zapcore.MillisDurationEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(w), lvl)
	// sink 写失败时回落到 stderr
	z := zap.New(core, zap.ErrorOutput(zapcore.Lock(os.Stderr))).With(zap.String("corr_id", corrID))
	return &Logger{z: z, level: lvl}
}

// NewNop 返回丢弃全部事件的日志器。
func NewNop() *Logger { return &Logger{z: zap.NewNop(), level: zapcore.FatalLevel} }

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ValidLevel 报告 level 是否为可识别的级别名（空串视为 info）。
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug", "info", "warn", "error":
		return true
	}
	return false
}

// Zap 暴露底层 zap.Logger（供需要自定义字段的调用方）。
func (l *Logger) Zap() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.z
}

// Close 刷新并关闭文件 sink。
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.sink != nil {
		return l.sink.Close()
	}
	return nil
}

// Event 描述一个标准事件。
type Event struct {
	Comp   string
	Stage  string // start|finish|error|warn
	Code   string
	Dur    time.Duration
	Count  int64
	FileID string
	Msg    string
	KV     map[string]string
}

func (l *Logger) log(lv zapcore.Level, ev Event) {
	if l == nil || l.z == nil {
		return
	}
	ce := l.z.Check(lv, ev.Msg)
	if ce == nil {
		return
	}
	fields := make([]zap.Field, 0, 7)
	fields = append(fields, zap.String("comp", ev.Comp), zap.String("stage", ev.Stage))
	if ev.Code != "" {
		fields = append(fields, zap.String("code", ev.Code))
	}
	if ev.Dur > 0 {
		fields = append(fields, zap.Int64("dur_ms", ev.Dur.Milliseconds()))
	}
	if ev.Count != 0 {
		fields = append(fields, zap.Int64("count", ev.Count))
	}
	if ev.FileID != "" {
		fields = append(fields, zap.String("file_id", ev.FileID))
	}
	if len(ev.KV) > 0 {
		fields = append(fields, zap.Any("kv", ev.KV))
	}
	ce.Write(fields...)
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "start", Msg: msg})
	return &Timer{l: l, comp: comp, t0: time.Now()}
}

// StartWith 记录带 file_id 的 start。
func (l *Logger) StartWith(comp, msg, fileID string) *Timer {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "start", FileID: fileID, Msg: msg})
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// StartWithKV 记录带 file_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID string, kv map[string]string) *Timer {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "start", FileID: fileID, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, fileID: fileID, t0: time.Now()}
}

// Warn 记录 warn 事件（例如输入顺序被自动修正）。
func (l *Logger) Warn(comp, msg string, kv map[string]string) {
	l.log(zapcore.WarnLevel, Event{Comp: comp, Stage: "warn", Msg: msg, KV: kv})
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", nil)
}

// ErrorWith 支持 file_id。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID string) {
	l.ErrorWithKV(comp, code, msg, durSince, fileID, nil)
}

// ErrorWithKV 支持附带键值对（例如阶数与残差）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, fileID string, kv map[string]string) {
	var dur time.Duration
	if durSince != nil {
		dur = time.Since(*durSince)
	}
	l.log(zapcore.ErrorLevel, Event{Comp: comp, Stage: "error", Code: code, Dur: dur, Msg: msg, FileID: fileID, KV: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(zapcore.InfoLevel, Event{Comp: comp, Stage: "finish", Dur: time.Since(start), Count: count, Msg: msg})
}

// DebugStart 输出调试级别的 start 事件（仅 level=debug 时生效）。
func (l *Logger) DebugStart(comp, msg, fileID string, kv map[string]string) {
	l.log(zapcore.DebugLevel, Event{Comp: comp, Stage: "start", FileID: fileID, Msg: msg, KV: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	t0     time.Time
}

// Since 返回起点，便于 Error(…, &t0)。
func (t *Timer) Since() time.Time {
	if t == nil {
		return time.Now()
	}
	return t.t0
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(zapcore.InfoLevel, Event{Comp: t.comp, Stage: "finish", Dur: time.Since(t.t0), Count: count, FileID: t.fileID, Msg: msg})
}

// FinishKV 记录带键值的 finish。
func (t *Timer) FinishKV(msg string, count int64, kv map[string]string) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(zapcore.InfoLevel, Event{Comp: t.comp, Stage: "finish", Dur: time.Since(t.t0), Count: count, FileID: t.fileID, Msg: msg, KV: kv})
}
