// Package expr 实现策略条件的表达式引擎：把用户输入的条件字符串
// 解析为不可变 AST，再针对指标环境反复求值为布尔信号。
// 解析与求值完全分离——解析从不检查变量是否存在，变量缺失只在求值时报错。
package expr

import (
	"fmt"
	"strconv"
)

// Node 是表达式 AST 节点。解析完成后不再修改，可被任意多次求值复用。
type Node interface {
	// Pos 返回节点在原始文本中的字节偏移，用于错误定位。
	Pos() int
	String() string
}

// NumberLit 数字字面量。
type NumberLit struct {
	Value float64
	At    int
}

// BoolLit 布尔字面量（true/false）。
type BoolLit struct {
	Value bool
	At    int
}

// VarRef 变量引用（指标名）。
type VarRef struct {
	Name string
	At   int
}

// UnaryExpr 一元运算，目前仅支持取负。
type UnaryExpr struct {
	Op string
	X  Node
	At int
}

// BinaryExpr 二元运算：算术、比较或逻辑。
type BinaryExpr struct {
	Op          string
	Left, Right Node
	At          int
}

func (n *NumberLit) Pos() int  { return n.At }
func (n *BoolLit) Pos() int    { return n.At }
func (n *VarRef) Pos() int     { return n.At }
func (n *UnaryExpr) Pos() int  { return n.At }
func (n *BinaryExpr) Pos() int { return n.At }

func (n *NumberLit) String() string {
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

func (n *BoolLit) String() string {
	return strconv.FormatBool(n.Value)
}

func (n *VarRef) String() string { return n.Name }

func (n *UnaryExpr) String() string {
	return fmt.Sprintf("%s%s", n.Op, n.X)
}

func (n *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", n.Left, n.Op, n.Right)
}
