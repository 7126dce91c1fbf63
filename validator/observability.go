package validator

import (
	"go/ast"
	"go/token"
	"strings"
)

var structuredMethods = map[string]bool{
	"Debugw": true, "Infow": true, "Warnw": true, "Errorw": true,
	"DebugContext": true, "InfoContext": true, "WarnContext": true, "ErrorContext": true,
	"LogAttrs": true,
}

// observabilityRule flags unstructured output and swallowed errors.
type observabilityRule struct{}

func (r *observabilityRule) id() string { return RuleObservability }

func (r *observabilityRule) check(m *module, report func(Violation)) {
	structured := false
	for _, sf := range m.files {
		for _, path := range sf.imports {
			if path == "go.uber.org/zap" || path == "log/slog" {
				structured = true
			}
		}
	}

	var firstErrBranch token.Pos
	nodes := []ast.Node{(*ast.CallExpr)(nil), (*ast.SelectorExpr)(nil), (*ast.IfStmt)(nil)}
	m.ins.Preorder(nodes, func(n ast.Node) {
		sf := m.fileOf(n)
		switch node := n.(type) {
		case *ast.CallExpr:
			if sel, ok := node.Fun.(*ast.SelectorExpr); ok && structuredMethods[sel.Sel.Name] {
				structured = true
			}
			if id, ok := node.Fun.(*ast.Ident); ok && (id.Name == "print" || id.Name == "println") {
				report(m.violation(RuleObservability, SeverityWarning, node.Pos(),
					"builtin "+id.Name+" writes to stderr", "log through the injected logger"))
				return
			}
			full := sf.selector(node.Fun)
			switch {
			case strings.HasPrefix(full, "fmt.Print"):
				report(m.violation(RuleObservability, SeverityWarning, node.Pos(),
					strings.TrimPrefix(full, "fmt.")+" writes unstructured output", "log through the injected logger"))
			case strings.HasPrefix(full, "log.Print"), strings.HasPrefix(full, "log.Fatal"), strings.HasPrefix(full, "log.Panic"):
				report(m.violation(RuleObservability, SeverityWarning, node.Pos(),
					"standard log package call "+strings.TrimPrefix(full, "log."), "log through the injected logger"))
			}
		case *ast.SelectorExpr:
			if full := sf.selector(node); full == "os.Stdout" || full == "os.Stderr" {
				report(m.violation(RuleObservability, SeverityWarning, node.Pos(),
					"direct use of "+full, "return data to the caller or log it"))
			}
		case *ast.IfStmt:
			name, ok := errCheck(node.Cond)
			if !ok {
				return
			}
			if firstErrBranch == token.NoPos {
				firstErrBranch = node.Pos()
			}
			if !handles(node.Body, name) {
				report(m.violation(RuleObservability, SeverityWarning, node.Pos(),
					"error "+name+" is neither returned nor logged", "return the error with context"))
			}
		}
	})

	if firstErrBranch != token.NoPos && !structured {
		report(m.violation(RuleObservability, SeverityInfo, firstErrBranch,
			"error paths exist but nothing logs structurally", "accept a *zap.SugaredLogger and log failures with fields"))
	}
}

// errCheck matches `x != nil` where x names an error.
func errCheck(cond ast.Expr) (string, bool) {
	be, ok := cond.(*ast.BinaryExpr)
	if !ok || be.Op != token.NEQ {
		return "", false
	}
	id, ok := be.X.(*ast.Ident)
	if !ok {
		return "", false
	}
	if nilID, ok := be.Y.(*ast.Ident); !ok || nilID.Name != "nil" {
		return "", false
	}
	if id.Name != "err" && !strings.HasSuffix(id.Name, "Err") && !strings.HasSuffix(id.Name, "err") {
		return "", false
	}
	return id.Name, true
}

// handles reports whether body returns, panics or otherwise uses name.
func handles(body *ast.BlockStmt, name string) bool {
	handled := false
	ast.Inspect(body, func(n ast.Node) bool {
		if handled {
			return false
		}
		switch x := n.(type) {
		case *ast.ReturnStmt:
			handled = true
		case *ast.Ident:
			if x.Name == name || x.Name == "panic" {
				handled = true
			}
		}
		return true
	})
	return handled
}
