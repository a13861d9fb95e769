package expr

import "fmt"

// Env 是求值环境：变量名到指标数值的映射。
// 每个模拟步重建一份新的 Env，AST 本身跨步复用。
type Env map[string]float64

// EvalError 表示求值阶段的失败：变量缺失或类型不匹配。
// Expr 保存出错子表达式的文本形式，Variable 在变量缺失时给出变量名。
type EvalError struct {
	Pos      int
	Expr     string
	Variable string
	Msg      string
}

func (e *EvalError) Error() string {
	if e.Variable != "" {
		return fmt.Sprintf("求值错误（位置 %d）: 未知变量 %q", e.Pos, e.Variable)
	}
	return fmt.Sprintf("求值错误（位置 %d，子表达式 %s）: %s", e.Pos, e.Expr, e.Msg)
}

// value 是带类型标签的求值结果：数字或布尔，二者互斥。
type value struct {
	isBool bool
	num    float64
	b      bool
}

// EvalBool 把 AST 在给定环境下求值为布尔信号。
// 顶层结果必须是布尔（即至少包含一次比较），纯算术表达式视为类型错误。
func EvalBool(node Node, env Env) (bool, error) {
	v, err := eval(node, env)
	if err != nil {
		return false, err
	}
	if !v.isBool {
		return false, &EvalError{Pos: node.Pos(), Expr: node.String(), Msg: "条件必须是布尔表达式"}
	}
	return v.b, nil
}

func eval(node Node, env Env) (value, error) {
	switch n := node.(type) {
	case *NumberLit:
		return value{num: n.Value}, nil
	case *BoolLit:
		return value{isBool: true, b: n.Value}, nil
	case *VarRef:
		v, ok := env[n.Name]
		if !ok {
			return value{}, &EvalError{Pos: n.At, Variable: n.Name}
		}
		return value{num: v}, nil
	case *UnaryExpr:
		x, err := eval(n.X, env)
		if err != nil {
			return value{}, err
		}
		if x.isBool {
			return value{}, &EvalError{Pos: n.At, Expr: n.String(), Msg: "取负要求数值操作数"}
		}
		return value{num: -x.num}, nil
	case *BinaryExpr:
		return evalBinary(n, env)
	default:
		return value{}, &EvalError{Pos: node.Pos(), Expr: node.String(), Msg: "未知节点类型"}
	}
}

func evalBinary(n *BinaryExpr, env Env) (value, error) {
	// 逻辑运算短路：左侧已决定结果时右侧不求值，
	// 右侧引用缺失变量也不会报错。
	if n.Op == "&&" || n.Op == "||" {
		left, err := eval(n.Left, env)
		if err != nil {
			return value{}, err
		}
		if !left.isBool {
			return value{}, &EvalError{Pos: n.At, Expr: n.Left.String(), Msg: fmt.Sprintf("%q 要求布尔操作数", n.Op)}
		}
		if n.Op == "&&" && !left.b {
			return value{isBool: true, b: false}, nil
		}
		if n.Op == "||" && left.b {
			return value{isBool: true, b: true}, nil
		}
		right, err := eval(n.Right, env)
		if err != nil {
			return value{}, err
		}
		if !right.isBool {
			return value{}, &EvalError{Pos: n.At, Expr: n.Right.String(), Msg: fmt.Sprintf("%q 要求布尔操作数", n.Op)}
		}
		return value{isBool: true, b: right.b}, nil
	}

	left, err := eval(n.Left, env)
	if err != nil {
		return value{}, err
	}
	right, err := eval(n.Right, env)
	if err != nil {
		return value{}, err
	}
	if left.isBool || right.isBool {
		return value{}, &EvalError{Pos: n.At, Expr: n.String(), Msg: fmt.Sprintf("%q 要求数值操作数", n.Op)}
	}

	switch n.Op {
	case "+":
		return value{num: left.num + right.num}, nil
	case "-":
		return value{num: left.num - right.num}, nil
	case "*":
		return value{num: left.num * right.num}, nil
	case "/":
		if right.num == 0 {
			return value{}, &EvalError{Pos: n.At, Expr: n.String(), Msg: "除数为零"}
		}
		return value{num: left.num / right.num}, nil
	case "<":
		return value{isBool: true, b: left.num < right.num}, nil
	case ">":
		return value{isBool: true, b: left.num > right.num}, nil
	case "<=":
		return value{isBool: true, b: left.num <= right.num}, nil
	case ">=":
		return value{isBool: true, b: left.num >= right.num}, nil
	case "==":
		return value{isBool: true, b: left.num == right.num}, nil
	default:
		return value{}, &EvalError{Pos: n.At, Expr: n.String(), Msg: fmt.Sprintf("未知运算符 %q", n.Op)}
	}
}
