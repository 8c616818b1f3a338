// Package tensor 提供对称 3×3 张量的 6 分量存储访问 [xx,xy,xz,yy,yz,zz]。
package tensor

import (
	"fmt"
	"strconv"
	"strings"

	"nrconv/pkg/contract"
)

// slot[i][j]: 逻辑下标到存储槽位；对称位置互为镜像。
var slot = [3][3]int{
	{0, 1, 2},
	{1, 3, 4},
	{2, 4, 5},
}

// Slot 返回 (i,j) 对应的存储槽位。
func Slot(i, j int) (int, error) {
	if i < 0 || i > 2 || j < 0 || j > 2 {
		return 0, &contract.IndexError{I: i, J: j}
	}
	return slot[i][j], nil
}

// Element 读取 t[i][j]；t 必须为 6 分量。
func Element(t []float64, i, j int) (float64, error) {
	k, err := Slot(i, j)
	if err != nil {
		return 0, err
	}
	if len(t) != contract.TensorWidth {
		return 0, &contract.SchemaMismatchError{What: "tensor", Detail: fmt.Sprintf("value has %d components, want %d", len(t), contract.TensorWidth)}
	}
	return t[k], nil
}

// Component 选择场值的一个分量；Scalar 为 true 时表示标量场本身。
type Component struct {
	Scalar bool
	I, J   int
}

// ScalarComponent: 标量场的唯一分量。
var ScalarComponent = Component{Scalar: true}

func (c Component) String() string {
	if c.Scalar {
		return "scalar"
	}
	const axes = "xyz"
	if c.I < 0 || c.I > 2 || c.J < 0 || c.J > 2 {
		return fmt.Sprintf("%d,%d", c.I, c.J)
	}
	return string([]byte{axes[c.I], axes[c.J]})
}

// Of 按标签取值：标量场只接受 ScalarComponent，张量场只接受 (i,j)。
func (c Component) Of(v contract.Value) (float64, error) {
	switch v.Tag {
	case contract.TagScalar:
		if !c.Scalar {
			return 0, &contract.SchemaMismatchError{What: "component", Detail: fmt.Sprintf("%s requested from a scalar field", c)}
		}
		return v.Scalar, nil
	case contract.TagVector:
		if c.Scalar {
			return 0, &contract.SchemaMismatchError{What: "component", Detail: "tensor field needs an (i,j) component"}
		}
		return Element(v.Vector, c.I, c.J)
	}
	return 0, &contract.SchemaMismatchError{What: "component", Detail: fmt.Sprintf("unknown value tag %d", v.Tag)}
}

// ParseComponent 解析 "scalar"、"" 、"xy" 或 "0,1"。
func ParseComponent(s string) (Component, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "scalar":
		return ScalarComponent, nil
	}
	if len(s) == 2 && strings.IndexByte("xyz", s[0]) >= 0 && strings.IndexByte("xyz", s[1]) >= 0 {
		return Component{I: strings.IndexByte("xyz", s[0]), J: strings.IndexByte("xyz", s[1])}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Component{}, fmt.Errorf("invalid component %q", s)
	}
	i, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	j, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return Component{}, fmt.Errorf("invalid component %q", s)
	}
	if _, err := Slot(i, j); err != nil {
		return Component{}, err
	}
	return Component{I: i, J: j}, nil
}
