package registry

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
)

// TestStrictUnmarshal 验证严格解码逻辑。
func TestStrictUnmarshal(t *testing.T) {
	type opt struct {
		A int `json:"a"`
	}
	var o opt
	if err := strictUnmarshal(nil, &o); err != nil || o.A != 0 {
		t.Fatalf("nil 输入失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1}`), &o); err != nil || o.A != 1 {
		t.Fatalf("合法 JSON 解析失败: %v", err)
	}
	if err := strictUnmarshal(json.RawMessage(`{"a":1,"b":2}`), &o); err == nil {
		t.Fatalf("未知字段应报错")
	}
}

// TestFactories 遍历注册表入口。
func TestFactories(t *testing.T) {
	t.Run("reader", func(t *testing.T) {
		if _, err := Reader["fs"](json.RawMessage(`{"include":["*.x.asc"]}`)); err != nil {
			t.Fatalf("reader: %v", err)
		}
		if _, err := Reader["fs"](json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("reader 未对未知字段报错")
		}
		if _, err := Reader["fs"](json.RawMessage(`{"include":["[a"]}`)); err == nil {
			t.Fatalf("reader 未对非法 glob 报错")
		}
	})
	t.Run("splitter", func(t *testing.T) {
		if _, err := Splitter["blocks"](json.RawMessage(`{}`)); err != nil {
			t.Fatalf("splitter: %v", err)
		}
		if _, err := Splitter["blocks"](json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("splitter 未对未知字段报错")
		}
	})
	t.Run("decoder", func(t *testing.T) {
		if _, err := Decoder["cactus"](json.RawMessage(`{"field":"tensor"}`)); err != nil {
			t.Fatalf("decoder: %v", err)
		}
		if _, err := Decoder["cactus"](json.RawMessage(`{"field":"vector"}`)); err == nil {
			t.Fatalf("decoder 未对未知场类型报错")
		}
	})
	t.Run("assembler", func(t *testing.T) {
		if _, err := Assembler["snapshots"](nil); err != nil {
			t.Fatalf("assembler: %v", err)
		}
		if _, err := Assembler["snapshots"](json.RawMessage(`{"x":1}`)); err == nil {
			t.Fatalf("assembler 未对未知字段报错")
		}
	})
	t.Run("writer", func(t *testing.T) {
		tmp := t.TempDir()
		raw := json.RawMessage([]byte(fmt.Sprintf(`{"output_dir":%q}`, tmp)))
		if _, err := Writer["fs"](raw); err != nil {
			t.Fatalf("writer: %v", err)
		}
		bad := json.RawMessage([]byte(fmt.Sprintf(`{"output_dir":%q,"x":1}`, tmp)))
		if _, err := Writer["fs"](bad); err == nil {
			t.Fatalf("writer 未对未知字段报错")
		}
	})
	t.Run("ledger", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "runs.sqlite")
		l, err := Ledger["sqlite"](json.RawMessage([]byte(fmt.Sprintf(`{"path":%q}`, p))))
		if err != nil {
			t.Fatalf("ledger: %v", err)
		}
		defer l.Close()
		if _, err := Ledger["sqlite"](json.RawMessage(`{}`)); err == nil {
			t.Fatalf("ledger 缺少 path 应报错")
		}
	})
}
