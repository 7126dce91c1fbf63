package validator

import (
	"fmt"
	"go/ast"
	"strings"
	"unicode"
)

// collaboratorSuffixes name types that wrap external resources.
var collaboratorSuffixes = []string{"Client", "Store", "Repository", "Repo", "Service", "DB", "Conn", "Pool", "Cache", "Logger"}

// valueConstructors build plain values and are fine at package level.
var valueConstructors = map[string]bool{
	"strings.NewReplacer":   true,
	"strings.NewReader":     true,
	"bytes.NewBuffer":       true,
	"bytes.NewBufferString": true,
	"bytes.NewReader":       true,
	"big.NewInt":            true,
	"big.NewFloat":          true,
	"big.NewRat":            true,
}

// injectionRule keeps collaborators out of package state.
type injectionRule struct{ cfg Config }

func (r *injectionRule) id() string { return RuleDependencyInjection }

func (r *injectionRule) check(m *module, report func(Violation)) {
	configured := setOf(r.cfg.CollaboratorConstructors)

	for _, sf := range m.files {
		for _, decl := range sf.ast.Decls {
			switch d := decl.(type) {
			case *ast.GenDecl:
				for _, spec := range d.Specs {
					vs, ok := spec.(*ast.ValueSpec)
					if !ok {
						continue
					}
					for i, val := range vs.Values {
						what := r.construction(sf, val, configured)
						if what == "" {
							continue
						}
						name := "_"
						if i < len(vs.Names) {
							name = vs.Names[i].Name
						}
						report(m.violation(RuleDependencyInjection, SeverityError, val.Pos(),
							fmt.Sprintf("package-level %s is constructed by %s", name, what),
							"construct it in main and pass it through a constructor"))
					}
				}
			case *ast.FuncDecl:
				if d.Recv == nil && d.Name.Name == "init" {
					report(m.violation(RuleDependencyInjection, SeverityWarning, d.Pos(),
						"init function runs hidden setup",
						"move setup into an explicit constructor"))
				}
			}
		}
	}

	m.ins.WithStack([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node, push bool, stack []ast.Node) bool {
		if !push {
			return true
		}
		sf := m.fileOf(n)
		call := n.(*ast.CallExpr)
		sel := sf.shortSelector(call.Fun)
		if !configured[sel] {
			return true
		}
		fn := enclosingFunc(stack)
		if fn == nil || isConstructorName(fn.Name.Name) {
			return true
		}
		report(m.violation(RuleDependencyInjection, SeverityWarning, call.Pos(),
			fmt.Sprintf("%s called inside %s", sel, fn.Name.Name),
			"accept the collaborator as a parameter or struct field"))
		return true
	})
}

// construction describes expr when it builds a collaborator.
func (r *injectionRule) construction(sf *sourceFile, expr ast.Expr, configured map[string]bool) string {
	switch e := expr.(type) {
	case *ast.CallExpr:
		if sel := sf.shortSelector(e.Fun); sel != "" {
			if configured[sel] {
				return sel
			}
			if valueConstructors[sel] {
				return ""
			}
		}
		if name := calleeName(e.Fun); isNewFunc(name) {
			return name + "()"
		}
	case *ast.UnaryExpr:
		if lit, ok := e.X.(*ast.CompositeLit); ok {
			if name := typeName(lit.Type); isCollaboratorType(name) {
				return "&" + name + "{}"
			}
		}
	}
	return ""
}

func calleeName(fun ast.Expr) string {
	switch f := fun.(type) {
	case *ast.Ident:
		return f.Name
	case *ast.SelectorExpr:
		return f.Sel.Name
	}
	return ""
}

func typeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.SelectorExpr:
		return t.Sel.Name
	}
	return ""
}

// isNewFunc matches NewX but not New.
func isNewFunc(name string) bool {
	return len(name) > 3 && strings.HasPrefix(name, "New") && unicode.IsUpper(rune(name[3]))
}

func isConstructorName(name string) bool {
	return name == "main" || strings.HasPrefix(name, "New") || strings.HasPrefix(name, "new")
}

func isCollaboratorType(name string) bool {
	for _, s := range collaboratorSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

func enclosingFunc(stack []ast.Node) *ast.FuncDecl {
	for i := len(stack) - 1; i >= 0; i-- {
		if fn, ok := stack[i].(*ast.FuncDecl); ok {
			return fn
		}
	}
	return nil
}
