// Package validator checks generated Go source against structural
// constraints before anything is written to disk.
//
// A module is the set of files produced by one generation attempt. Each
// file is parsed once; the rules then walk a shared inspector and report
// violations independently of one another, so rule order never changes
// the result.
package validator

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/tools/go/ast/inspector"

	"github.com/teranos/exemplar/logger"
)

// Severity of a violation. Only errors fail validation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rule identifiers.
const (
	RuleParse                = "parse"
	RuleInterfaceConformance = "interface-conformance"
	RuleDependencyInjection  = "dependency-injection"
	RuleTypeAnnotations      = "type-annotations"
	RuleImportSafety         = "import-safety"
	RuleComplexity           = "complexity"
	RuleSecurityPatterns     = "security-patterns"
	RuleObservability        = "observability"
)

// Violation is one finding.
type Violation struct {
	RuleID       string   `json:"rule_id"`
	Severity     Severity `json:"severity"`
	File         string   `json:"file"`
	Line         int      `json:"line"`
	Column       int      `json:"column"`
	Message      string   `json:"message"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
}

// Location renders file:line:col.
func (v Violation) Location() string {
	return fmt.Sprintf("%s:%d:%d", v.File, v.Line, v.Column)
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s [%s] %s", v.Location(), v.Severity, v.RuleID, v.Message)
}

// Result is the report for one module.
type Result struct {
	Violations []Violation `json:"violations"`
	Passed     bool        `json:"passed"`
}

// Errors returns the error-severity violations.
func (r *Result) Errors() []Violation { return r.filter(SeverityError) }

// Warnings returns the warning-severity violations.
func (r *Result) Warnings() []Violation { return r.filter(SeverityWarning) }

// ByRule returns the violations reported by rule.
func (r *Result) ByRule(rule string) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.RuleID == rule {
			out = append(out, v)
		}
	}
	return out
}

func (r *Result) filter(sev Severity) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == sev {
			out = append(out, v)
		}
	}
	return out
}

// Profile selects which rules run.
type Profile int

const (
	// ProfileModule runs every rule. Used for implementation and data model files.
	ProfileModule Profile = iota
	// ProfileTests skips the rules that only make sense for the implementation.
	ProfileTests
)

// Config holds rule thresholds and lists. Zero values fall back to DefaultConfig.
type Config struct {
	InterfaceName string
	MethodName    string
	MethodParams  int
	MethodResults int

	MaxCyclomatic    int
	MaxFunctionLines int
	MaxFileLines     int

	// DeniedImports extends DefaultDeniedImports; AllowedImports removes entries from it.
	DeniedImports  []string
	AllowedImports []string
	DeniedCalls    []string

	// CollaboratorConstructors are package.Func selectors that build
	// external collaborators (databases, HTTP clients, loggers).
	CollaboratorConstructors []string
}

// DefaultDeniedImports are capabilities generated transformations never need.
var DefaultDeniedImports = []string{
	"os/exec",
	"syscall",
	"golang.org/x/sys/unix",
	"golang.org/x/sys/windows",
	"unsafe",
	"plugin",
	"net",
	"net/http",
	"net/rpc",
	"github.com/traefik/yaegi/interp",
}

// DefaultDeniedCalls are dangerous functions of otherwise allowed packages.
var DefaultDeniedCalls = []string{
	"os.StartProcess",
	"os.RemoveAll",
	"os.Chmod",
	"os.Chown",
}

// DefaultConfig returns the built-in thresholds.
func DefaultConfig() Config {
	return Config{
		InterfaceName:    "Transformer",
		MethodName:       "Transform",
		MethodParams:     2,
		MethodResults:    2,
		MaxCyclomatic:    10,
		MaxFunctionLines: 60,
		MaxFileLines:     400,
		DeniedCalls:      DefaultDeniedCalls,
		CollaboratorConstructors: []string{
			"sql.Open", "http.NewRequest", "zap.NewProduction", "zap.NewDevelopment",
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InterfaceName == "" {
		c.InterfaceName = d.InterfaceName
	}
	if c.MethodName == "" {
		c.MethodName = d.MethodName
	}
	if c.MethodParams <= 0 {
		c.MethodParams = d.MethodParams
	}
	if c.MethodResults <= 0 {
		c.MethodResults = d.MethodResults
	}
	if c.MaxCyclomatic <= 0 {
		c.MaxCyclomatic = d.MaxCyclomatic
	}
	if c.MaxFunctionLines <= 0 {
		c.MaxFunctionLines = d.MaxFunctionLines
	}
	if c.MaxFileLines <= 0 {
		c.MaxFileLines = d.MaxFileLines
	}
	if c.DeniedCalls == nil {
		c.DeniedCalls = d.DeniedCalls
	}
	if c.CollaboratorConstructors == nil {
		c.CollaboratorConstructors = d.CollaboratorConstructors
	}
	return c
}

// deniedImports is the effective import denylist.
func (c Config) deniedImports() map[string]bool {
	denied := make(map[string]bool)
	for _, p := range DefaultDeniedImports {
		denied[p] = true
	}
	for _, p := range c.DeniedImports {
		denied[p] = true
	}
	for _, p := range c.AllowedImports {
		delete(denied, p)
	}
	return denied
}

// rule is one independent check over a parsed module.
type rule interface {
	id() string
	check(m *module, report func(Violation))
}

// Validator runs the rules. It is safe for concurrent use.
type Validator struct {
	cfg   Config
	rules []rule
	log   *zap.SugaredLogger
}

// New creates a validator. log may be nil.
func New(cfg Config, log *zap.SugaredLogger) *Validator {
	cfg = cfg.withDefaults()
	return &Validator{
		cfg: cfg,
		rules: []rule{
			&conformanceRule{cfg: cfg},
			&injectionRule{cfg: cfg},
			&annotationRule{},
			&importRule{denied: cfg.deniedImports(), calls: setOf(cfg.DeniedCalls)},
			&complexityRule{cfg: cfg},
			&securityRule{},
			&observabilityRule{},
		},
		log: logger.Nop(log),
	}
}

// Config returns the effective configuration.
func (v *Validator) Config() Config { return v.cfg }

// ValidateSource checks a single file as a complete module.
func (v *Validator) ValidateSource(name string, src []byte) *Result {
	return v.Validate(map[string][]byte{name: src})
}

// Validate checks files as one module with every rule.
func (v *Validator) Validate(files map[string][]byte) *Result {
	return v.ValidateProfile(files, ProfileModule)
}

// ValidateTests checks generated test files.
func (v *Validator) ValidateTests(files map[string][]byte) *Result {
	return v.ValidateProfile(files, ProfileTests)
}

// ValidateProfile checks files with the rules of profile. When any file
// fails to parse only parse violations are reported.
func (v *Validator) ValidateProfile(files map[string][]byte, profile Profile) *Result {
	start := time.Now()

	m, parseErrs := parseModule(files)
	res := &Result{Violations: parseErrs}
	if len(parseErrs) == 0 {
		report := func(vi Violation) { res.Violations = append(res.Violations, vi) }
		for _, r := range v.rules {
			if profile == ProfileTests && !testRule(r.id()) {
				continue
			}
			r.check(m, report)
		}
	}

	sortViolations(res.Violations)
	res.Passed = len(res.Errors()) == 0

	v.log.Debugw("module validated",
		logger.FieldCount, len(res.Violations),
		"files", len(files),
		"passed", res.Passed,
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return res
}

func testRule(id string) bool {
	switch id {
	case RuleImportSafety, RuleSecurityPatterns, RuleComplexity:
		return true
	}
	return false
}

func sortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.Message < b.Message
	})
}

// module is a parsed set of files sharing one inspector.
type module struct {
	fset  *token.FileSet
	files []*sourceFile
	ins   *inspector.Inspector

	byName map[string]*sourceFile
}

type sourceFile struct {
	name    string
	ast     *ast.File
	lines   int
	imports map[string]string // local name -> import path
}

func parseModule(files map[string][]byte) (*module, []Violation) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	m := &module{fset: token.NewFileSet(), byName: make(map[string]*sourceFile)}
	var errs []Violation
	var asts []*ast.File
	for _, name := range names {
		src := files[name]
		f, err := parser.ParseFile(m.fset, name, src, parser.ParseComments|parser.SkipObjectResolution)
		if err != nil {
			errs = append(errs, parseViolations(name, err)...)
			continue
		}
		sf := &sourceFile{
			name:    name,
			ast:     f,
			lines:   countLines(src),
			imports: importNames(f),
		}
		m.files = append(m.files, sf)
		m.byName[name] = sf
		asts = append(asts, f)
	}
	m.ins = inspector.New(asts)
	return m, errs
}

func parseViolations(name string, err error) []Violation {
	var list scanner.ErrorList
	if el, ok := err.(scanner.ErrorList); ok {
		list = el
	}
	if len(list) == 0 {
		return []Violation{{RuleID: RuleParse, Severity: SeverityError, File: name, Line: 1, Column: 1, Message: err.Error()}}
	}
	out := make([]Violation, 0, len(list))
	for _, e := range list {
		out = append(out, Violation{
			RuleID:       RuleParse,
			Severity:     SeverityError,
			File:         name,
			Line:         e.Pos.Line,
			Column:       e.Pos.Column,
			Message:      e.Msg,
			SuggestedFix: "return syntactically valid Go source",
		})
	}
	return out
}

func countLines(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	n := strings.Count(string(src), "\n")
	if src[len(src)-1] != '\n' {
		n++
	}
	return n
}

// violation builds a Violation positioned at pos.
func (m *module) violation(rule string, sev Severity, pos token.Pos, msg, fix string) Violation {
	p := m.fset.Position(pos)
	return Violation{
		RuleID:       rule,
		Severity:     sev,
		File:         p.Filename,
		Line:         p.Line,
		Column:       p.Column,
		Message:      msg,
		SuggestedFix: fix,
	}
}

// fileOf returns the file containing n.
func (m *module) fileOf(n ast.Node) *sourceFile {
	return m.byName[m.fset.Position(n.Pos()).Filename]
}

// importNames maps the local name of each import to its path.
func importNames(f *ast.File) map[string]string {
	out := make(map[string]string, len(f.Imports))
	for _, imp := range f.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		name := defaultImportName(path)
		if imp.Name != nil {
			name = imp.Name.Name
		}
		out[name] = path
	}
	return out
}

func defaultImportName(path string) string {
	name := path
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, ".v"); i > 0 {
		name = name[:i]
	}
	if len(name) > 1 && name[0] == 'v' && strings.Trim(name[1:], "0123456789") == "" {
		// major version suffix: use the element before it
		trimmed := strings.TrimSuffix(path, "/"+name)
		if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
			name = trimmed[i+1:]
		}
	}
	return strings.TrimPrefix(name, "go-")
}

// selector returns "pkgpath.Func" for a call through an imported package,
// resolving local import names, or "" otherwise.
func (sf *sourceFile) selector(expr ast.Expr) string {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok {
		return ""
	}
	id, ok := sel.X.(*ast.Ident)
	if !ok {
		return ""
	}
	path, ok := sf.imports[id.Name]
	if !ok {
		return ""
	}
	return path + "." + sel.Sel.Name
}

// shortSelector returns "pkg.Func" using the default name of the import
// path, so configured names like "sql.Open" match regardless of aliasing.
func (sf *sourceFile) shortSelector(expr ast.Expr) string {
	full := sf.selector(expr)
	if full == "" {
		return ""
	}
	i := strings.LastIndexByte(full, '.')
	return defaultImportName(full[:i]) + full[i:]
}

func setOf(list []string) map[string]bool {
	out := make(map[string]bool, len(list))
	for _, s := range list {
		out[s] = true
	}
	return out
}
