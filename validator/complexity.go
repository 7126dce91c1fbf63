package validator

import (
	"fmt"
	"go/ast"
	"go/token"
)

// complexityRule bounds cyclomatic complexity and length.
type complexityRule struct{ cfg Config }

func (r *complexityRule) id() string { return RuleComplexity }

// cyclomatic counts decision points in fn, including nested function literals.
func cyclomatic(fn *ast.FuncDecl) int {
	c := 1
	if fn.Body == nil {
		return c
	}
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		switch s := n.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			c++
		case *ast.CaseClause:
			if s.List != nil {
				c++
			}
		case *ast.CommClause:
			if s.Comm != nil {
				c++
			}
		case *ast.BinaryExpr:
			if s.Op == token.LAND || s.Op == token.LOR {
				c++
			}
		}
		return true
	})
	return c
}

func (r *complexityRule) check(m *module, report func(Violation)) {
	m.ins.Preorder([]ast.Node{(*ast.FuncDecl)(nil)}, func(n ast.Node) {
		fn := n.(*ast.FuncDecl)
		name := fn.Name.Name
		if recv := receiverName(fn); recv != "" {
			name = recv + "." + name
		}
		if c := cyclomatic(fn); c > r.cfg.MaxCyclomatic {
			report(m.violation(RuleComplexity, SeverityError, fn.Pos(),
				fmt.Sprintf("%s has cyclomatic complexity %d (max %d)", name, c, r.cfg.MaxCyclomatic),
				"split the function into per-field helpers"))
		}
		start := m.fset.Position(fn.Pos()).Line
		end := m.fset.Position(fn.End()).Line
		if lines := end - start + 1; lines > r.cfg.MaxFunctionLines {
			report(m.violation(RuleComplexity, SeverityWarning, fn.Pos(),
				fmt.Sprintf("%s is %d lines long (max %d)", name, lines, r.cfg.MaxFunctionLines),
				"extract helpers"))
		}
	})

	for _, sf := range m.files {
		if sf.lines <= r.cfg.MaxFileLines {
			continue
		}
		report(Violation{
			RuleID:       RuleComplexity,
			Severity:     SeverityWarning,
			File:         sf.name,
			Line:         r.cfg.MaxFileLines + 1,
			Column:       1,
			Message:      fmt.Sprintf("file is %d lines long (max %d)", sf.lines, r.cfg.MaxFileLines),
			SuggestedFix: "split the file",
		})
	}
}
