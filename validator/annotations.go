package validator

import (
	"fmt"
	"go/ast"
)

// annotationRule rejects untyped values on exported signatures.
type annotationRule struct{}

func (r *annotationRule) id() string { return RuleTypeAnnotations }

func isEmptyInterface(expr ast.Expr) bool {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name == "any"
	case *ast.InterfaceType:
		return t.Methods == nil || len(t.Methods.List) == 0
	}
	return false
}

// containsEmptyInterface reports slices, maps, arrays and channels of any.
func containsEmptyInterface(expr ast.Expr) bool {
	switch t := expr.(type) {
	case *ast.ArrayType:
		return isEmptyInterface(t.Elt) || containsEmptyInterface(t.Elt)
	case *ast.MapType:
		return isEmptyInterface(t.Key) || isEmptyInterface(t.Value) || containsEmptyInterface(t.Value)
	case *ast.ChanType:
		return isEmptyInterface(t.Value)
	case *ast.StarExpr:
		return containsEmptyInterface(t.X)
	}
	return false
}

func (r *annotationRule) check(m *module, report func(Violation)) {
	m.ins.Preorder([]ast.Node{(*ast.FuncDecl)(nil)}, func(n ast.Node) {
		fn := n.(*ast.FuncDecl)
		if !fn.Name.IsExported() {
			return
		}
		name := fn.Name.Name
		if recv := receiverName(fn); recv != "" {
			if !ast.IsExported(recv) {
				return
			}
			name = recv + "." + name
		}
		r.fields(m, report, name, "parameter", fn.Type.Params)
		r.fields(m, report, name, "result", fn.Type.Results)
	})
}

func (r *annotationRule) fields(m *module, report func(Violation), fn, role string, fl *ast.FieldList) {
	if fl == nil {
		return
	}
	for _, f := range fl.List {
		label := role
		if len(f.Names) > 0 {
			label = role + " " + f.Names[0].Name
		}
		switch {
		case isEmptyInterface(f.Type):
			report(m.violation(RuleTypeAnnotations, SeverityError, f.Type.Pos(),
				fmt.Sprintf("exported %s has untyped %s", fn, label),
				"use the concrete Input/Output types or a named interface"))
		case containsEmptyInterface(f.Type):
			report(m.violation(RuleTypeAnnotations, SeverityInfo, f.Type.Pos(),
				fmt.Sprintf("exported %s %s is a container of empty interface", fn, label),
				"prefer a typed struct"))
		}
	}
}
