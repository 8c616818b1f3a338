package registry

import (
	"bytes"
	"encoding/json"

	"nrconv/pkg/contract"
	asnap "nrconv/plugins/assembler/snapshots"
	dcactus "nrconv/plugins/decoder/cactus"
	lsql "nrconv/plugins/ledger/sqlite"
	rfs "nrconv/plugins/reader/filesystem"
	sblk "nrconv/plugins/splitter/blocks"
	wfs "nrconv/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewSplitter 工厂签名：接收原样 JSON Options。
type NewSplitter func(raw json.RawMessage) (contract.Splitter, error)

// NewDecoder 工厂签名：接收原样 JSON Options。
type NewDecoder func(raw json.RawMessage) (contract.Decoder, error)

// NewAssembler 工厂签名：接收原样 JSON Options。
type NewAssembler func(raw json.RawMessage) (contract.Assembler, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// NewLedger 工厂签名：接收原样 JSON Options。
type NewLedger func(raw json.RawMessage) (contract.Ledger, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		r := rfs.New(&opts)
		if err := r.Validate(); err != nil {
			return nil, err
		}
		return r, nil
	},
}

// Splitter 工厂注册表。
var Splitter = map[string]NewSplitter{
	// blocks: 以三个换行分隔迭代块
	"blocks": func(raw json.RawMessage) (contract.Splitter, error) {
		var opts sblk.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return sblk.New(&opts), nil
	},
}

// Decoder 工厂注册表。
var Decoder = map[string]NewDecoder{
	// cactus: 12 列 Cactus ASCII 行（标量或对称张量）
	"cactus": func(raw json.RawMessage) (contract.Decoder, error) {
		var opts dcactus.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return dcactus.New(&opts)
	},
}

// Assembler 工厂注册表。
var Assembler = map[string]NewAssembler{
	// snapshots: 去 ghost 点并按迭代排序
	"snapshots": func(raw json.RawMessage) (contract.Assembler, error) {
		var opts asnap.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return asnap.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// Ledger 工厂注册表。
var Ledger = map[string]NewLedger{
	// sqlite: 本地 SQLite 运行历史
	"sqlite": func(raw json.RawMessage) (contract.Ledger, error) {
		var opts lsql.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return lsql.Open(&opts)
	},
}
