package sqlexpr

// Expr is any expression node.
type Expr interface {
	exprNode()
}

// ColumnRef represents a column reference, optionally qualified with a table alias.
type ColumnRef struct {
	Table  string // optional table/alias qualifier
	Column string
	Quoted bool // true if the column was quoted in the original SQL
}

// Literal represents a literal value (number, string, bool, null).
type Literal struct {
	Type  LiteralType
	Value string
}

// LiteralType represents the type of a literal.
type LiteralType int

// Literal kinds.
const (
	LiteralNumber LiteralType = iota
	LiteralString
	LiteralBool
	LiteralNull
)

// BinaryExpr represents a binary expression (left op right).
type BinaryExpr struct {
	Left  Expr
	Op    TokenType
	Right Expr
}

// UnaryExpr represents NOT x, -x or +x.
type UnaryExpr struct {
	Op   TokenType
	Expr Expr
}

// ParenExpr represents a parenthesized expression.
type ParenExpr struct {
	Expr Expr
}

// FuncCall represents a function call. From and For hold the keyword
// arguments of SUBSTRING(x FROM s FOR l) style calls.
type FuncCall struct {
	Name     string // stored in original case
	Distinct bool
	Star     bool // count(*)
	Args     []Expr
	From     Expr
	For      Expr
}

// CaseExpr represents a CASE expression.
type CaseExpr struct {
	Operand Expr // nil for a searched CASE
	Whens   []WhenClause
	Else    Expr
}

// WhenClause represents a WHEN clause in a CASE expression.
type WhenClause struct {
	Condition Expr
	Result    Expr
}

// CastExpr represents CAST(expr AS type) or TRY_CAST(expr AS type).
type CastExpr struct {
	Expr     Expr
	TypeName string
	TryCast  bool
}

// TypeCastExpr represents expr::type.
type TypeCastExpr struct {
	Expr     Expr
	TypeName string
}

// InExpr represents expr [NOT] IN (values).
type InExpr struct {
	Expr   Expr
	Not    bool
	Values []Expr
}

// BetweenExpr represents expr [NOT] BETWEEN low AND high.
type BetweenExpr struct {
	Expr Expr
	Not  bool
	Low  Expr
	High Expr
}

// IsNullExpr represents IS [NOT] NULL.
type IsNullExpr struct {
	Expr Expr
	Not  bool
}

// IsBoolExpr represents IS [NOT] TRUE/FALSE.
type IsBoolExpr struct {
	Expr  Expr
	Not   bool
	Value bool
}

// LikeExpr represents [NOT] LIKE / ILIKE.
type LikeExpr struct {
	Expr    Expr
	Not     bool
	Pattern Expr
	ILike   bool
}

// IndexExpr represents expr[index].
type IndexExpr struct {
	Expr  Expr
	Index Expr
}

// ListLiteral represents [a, b, c].
type ListLiteral struct {
	Elements []Expr
}

// LambdaExpr represents x -> body or (x, y) -> body. Params are bound names,
// not column references.
type LambdaExpr struct {
	Params []string
	Body   Expr
}

// StarExpr represents * or table.*.
type StarExpr struct {
	Table string
}

func (*ColumnRef) exprNode()    {}
func (*Literal) exprNode()      {}
func (*BinaryExpr) exprNode()   {}
func (*UnaryExpr) exprNode()    {}
func (*ParenExpr) exprNode()    {}
func (*FuncCall) exprNode()     {}
func (*CaseExpr) exprNode()     {}
func (*CastExpr) exprNode()     {}
func (*TypeCastExpr) exprNode() {}
func (*InExpr) exprNode()       {}
func (*BetweenExpr) exprNode()  {}
func (*IsNullExpr) exprNode()   {}
func (*IsBoolExpr) exprNode()   {}
func (*LikeExpr) exprNode()     {}
func (*IndexExpr) exprNode()    {}
func (*ListLiteral) exprNode()  {}
func (*LambdaExpr) exprNode()   {}
func (*StarExpr) exprNode()     {}
