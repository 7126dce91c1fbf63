package validator

import (
	"fmt"
	"go/ast"
	"go/token"
	"regexp"
	"strconv"
)

var (
	secretName = regexp.MustCompile(`(?i)(password|passwd|secret|token|api_?key|private_?key|credential)`)

	keyShapes = []*regexp.Regexp{
		regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
		regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
		regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36}`),
		regexp.MustCompile(`xox[abprs]-[A-Za-z0-9-]{10,}`),
		regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
	}

	sqlMethods = map[string]int{
		"Query": 0, "QueryRow": 0, "Exec": 0, "Prepare": 0,
		"QueryContext": 1, "QueryRowContext": 1, "ExecContext": 1, "PrepareContext": 1,
	}
)

// securityRule flags injectable SQL, embedded credentials and dynamic templates.
type securityRule struct{}

func (r *securityRule) id() string { return RuleSecurityPatterns }

func (r *securityRule) check(m *module, report func(Violation)) {
	shaped := make(map[token.Pos]bool)

	m.ins.Preorder([]ast.Node{(*ast.BasicLit)(nil)}, func(n ast.Node) {
		lit := n.(*ast.BasicLit)
		if lit.Kind != token.STRING {
			return
		}
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return
		}
		for _, re := range keyShapes {
			if re.MatchString(s) {
				shaped[lit.Pos()] = true
				report(m.violation(RuleSecurityPatterns, SeverityError, lit.Pos(),
					"string literal looks like a credential",
					"read credentials from configuration"))
				return
			}
		}
	})

	named := func(name string, val ast.Expr) {
		lit, ok := val.(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING || shaped[lit.Pos()] || !secretName.MatchString(name) {
			return
		}
		if s, err := strconv.Unquote(lit.Value); err != nil || s == "" {
			return
		}
		report(m.violation(RuleSecurityPatterns, SeverityError, lit.Pos(),
			fmt.Sprintf("hard-coded credential in %s", name),
			"read credentials from configuration"))
	}

	nodes := []ast.Node{
		(*ast.ValueSpec)(nil),
		(*ast.AssignStmt)(nil),
		(*ast.KeyValueExpr)(nil),
		(*ast.CallExpr)(nil),
	}
	m.ins.Preorder(nodes, func(n ast.Node) {
		switch node := n.(type) {
		case *ast.ValueSpec:
			for i, v := range node.Values {
				if i < len(node.Names) {
					named(node.Names[i].Name, v)
				}
			}
		case *ast.AssignStmt:
			for i, rhs := range node.Rhs {
				if i < len(node.Lhs) {
					named(exprName(node.Lhs[i]), rhs)
				}
			}
		case *ast.KeyValueExpr:
			named(exprName(node.Key), node.Value)
		case *ast.CallExpr:
			r.call(m, node, report)
		}
	})
}

func exprName(e ast.Expr) string {
	switch x := e.(type) {
	case *ast.Ident:
		return x.Name
	case *ast.SelectorExpr:
		return x.Sel.Name
	case *ast.BasicLit:
		if s, err := strconv.Unquote(x.Value); err == nil {
			return s
		}
	}
	return ""
}

func (r *securityRule) call(m *module, call *ast.CallExpr, report func(Violation)) {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return
	}
	sf := m.fileOf(call)

	if idx, ok := sqlMethods[sel.Sel.Name]; ok && idx < len(call.Args) {
		if dynamicQuery(sf, call.Args[idx]) {
			report(m.violation(RuleSecurityPatterns, SeverityError, call.Args[idx].Pos(),
				fmt.Sprintf("%s query is built from dynamic strings", sel.Sel.Name),
				"use placeholders and pass values as arguments"))
		}
	}

	importsTemplate := sf.imports["template"] == "text/template" || sf.imports["template"] == "html/template"
	if !importsTemplate {
		return
	}
	if sel.Sel.Name == "Parse" && len(call.Args) == 1 && !isStringConst(call.Args[0]) {
		report(m.violation(RuleSecurityPatterns, SeverityWarning, call.Pos(),
			"template parsed from non-constant text",
			"parse templates from constants"))
	}
	if sf.selector(call.Fun) == "html/template.HTML" && len(call.Args) == 1 && !isStringConst(call.Args[0]) {
		report(m.violation(RuleSecurityPatterns, SeverityWarning, call.Pos(),
			"template.HTML of a non-constant value bypasses escaping",
			"pass plain strings and let the template escape them"))
	}
}

func dynamicQuery(sf *sourceFile, arg ast.Expr) bool {
	switch a := arg.(type) {
	case *ast.CallExpr:
		return sf.selector(a.Fun) == "fmt.Sprintf"
	case *ast.BinaryExpr:
		return a.Op == token.ADD && !(isStringConst(a.X) && isStringConst(a.Y))
	}
	return false
}

func isStringConst(e ast.Expr) bool {
	switch x := e.(type) {
	case *ast.BasicLit:
		return x.Kind == token.STRING
	case *ast.BinaryExpr:
		return x.Op == token.ADD && isStringConst(x.X) && isStringConst(x.Y)
	case *ast.ParenExpr:
		return isStringConst(x.X)
	}
	return false
}
