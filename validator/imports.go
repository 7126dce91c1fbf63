package validator

import (
	"fmt"
	"go/ast"
	"strings"
)

// importRule rejects denylisted capabilities.
type importRule struct {
	denied map[string]bool
	calls  map[string]bool
}

func (r *importRule) id() string { return RuleImportSafety }

func (r *importRule) check(m *module, report func(Violation)) {
	for _, sf := range m.files {
		for _, imp := range sf.ast.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if !r.denied[path] {
				continue
			}
			report(m.violation(RuleImportSafety, SeverityError, imp.Pos(),
				fmt.Sprintf("import of denied package %q", path),
				"transformations must not reach the process, network or memory directly"))
		}
	}

	m.ins.Preorder([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node) {
		call := n.(*ast.CallExpr)
		sf := m.fileOf(call)
		full := sf.selector(call.Fun)
		if full == "" {
			return
		}
		i := strings.LastIndexByte(full, '.')
		if r.denied[full[:i]] {
			return // already reported once at the import
		}
		short := sf.shortSelector(call.Fun)
		if !r.calls[short] {
			return
		}
		report(m.violation(RuleImportSafety, SeverityError, call.Pos(),
			fmt.Sprintf("call to denied function %s", short),
			"remove the call"))
	})
}
