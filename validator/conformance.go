package validator

import (
	"fmt"
	"go/ast"
	"go/token"
	"sort"
)

// conformanceRule requires a named type with the configured method.
type conformanceRule struct{ cfg Config }

func (r *conformanceRule) id() string { return RuleInterfaceConformance }

func fieldCount(fl *ast.FieldList) int {
	if fl == nil {
		return 0
	}
	n := 0
	for _, f := range fl.List {
		if len(f.Names) == 0 {
			n++
		} else {
			n += len(f.Names)
		}
	}
	return n
}

func receiverName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return ""
	}
	t := fn.Recv.List[0].Type
	for {
		switch tt := t.(type) {
		case *ast.StarExpr:
			t = tt.X
		case *ast.IndexExpr:
			t = tt.X
		case *ast.IndexListExpr:
			t = tt.X
		case *ast.Ident:
			return tt.Name
		default:
			return ""
		}
	}
}

func (r *conformanceRule) check(m *module, report func(Violation)) {
	var (
		near    []string
		nearPos token.Pos
	)
	found := false
	m.ins.Preorder([]ast.Node{(*ast.FuncDecl)(nil)}, func(n ast.Node) {
		fn := n.(*ast.FuncDecl)
		recv := receiverName(fn)
		if recv == "" || fn.Name.Name != r.cfg.MethodName {
			return
		}
		params, results := fieldCount(fn.Type.Params), fieldCount(fn.Type.Results)
		if params == r.cfg.MethodParams && results == r.cfg.MethodResults {
			found = true
			return
		}
		near = append(near, fmt.Sprintf("%s.%s has %d params and %d results", recv, fn.Name.Name, params, results))
		if nearPos == token.NoPos {
			nearPos = fn.Pos()
		}
	})
	if found {
		return
	}

	want := fmt.Sprintf("%s with %d params and %d results", r.cfg.MethodName, r.cfg.MethodParams, r.cfg.MethodResults)
	fix := fmt.Sprintf("declare a type with method %s(ctx context.Context, in Input) (Output, error)", r.cfg.MethodName)
	if len(near) > 0 {
		sort.Strings(near)
		report(m.violation(RuleInterfaceConformance, SeverityError, nearPos,
			fmt.Sprintf("no type implements %s: want %s, but %s", r.cfg.InterfaceName, want, near[0]), fix))
		return
	}

	var pos token.Pos
	if len(m.files) > 0 {
		pos = m.files[0].ast.Package
	}
	report(m.violation(RuleInterfaceConformance, SeverityError, pos,
		fmt.Sprintf("no type implements %s: missing method %s", r.cfg.InterfaceName, want), fix))
}
