package expressions

// Checker compile-checks expressions embedded in node configs without
// evaluating them. Three implementations: CEL (loop conditions), Expr
// (conditional and router logic), GoJQ (data paths).
type Checker interface {
	Name() string
	Check(expression string) error
}

// Set bundles one checker per language.
type Set struct {
	CEL  *CELChecker
	Expr *ExprChecker
	JQ   *JQChecker
}

// NewSet builds every checker.
func NewSet() (*Set, error) {
	celChecker, err := NewCELChecker()
	if err != nil {
		return nil, err
	}
	return &Set{
		CEL:  celChecker,
		Expr: NewExprChecker(),
		JQ:   NewJQChecker(),
	}, nil
}
