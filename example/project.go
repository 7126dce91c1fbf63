package example

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/tabular"
)

// DescriptorName is the conventional project descriptor file name.
const DescriptorName = "exemplar.toml"

// Project is a parsed project descriptor.
//
//	name = "employees"
//	requires = ">= 0.3"
//	package = "employees"
//	examples = ["examples/emp-1.json", "examples/emp-2.json"]
//
//	[collaborator]
//	kind = "csv"
//	path = "data/employees.csv"
//
//	[[transformations]]
//	target = "full_name"
//	description = "first and last name joined by a space"
//
//	[target_schema]
//	annual_salary_usd = "float"
type Project struct {
	Name            string               `toml:"name"`
	Requires        string               `toml:"requires"`
	Package         string               `toml:"package"`
	OutputDir       string               `toml:"output_dir"`
	Examples        []string             `toml:"examples"`
	Collaborator    *tabular.Config      `toml:"collaborator"`
	Transformations []TransformationNote `toml:"transformations"`
	TargetSchema    map[string]string    `toml:"target_schema"`

	// Path is the descriptor file; Dir is the directory relative paths resolve against.
	Path string `toml:"-"`
	Dir  string `toml:"-"`
}

// TransformationNote is a human-authored description of a transformation.
// It is documentation only; detection never reads it.
type TransformationNote struct {
	Target      string   `toml:"target"`
	Sources     []string `toml:"sources"`
	Description string   `toml:"description"`
}

// LoadProject reads a descriptor file, or exemplar.toml inside a directory.
func LoadProject(path string) (*Project, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DescriptorName)
	}

	var p Project
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "failed to read project %s", path), errors.ErrInvalidConfig)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.WithHint(
			errors.NewInvalidConfigError("project %s has unknown keys: %s", path, strings.Join(keys, ", ")),
			"top-level keys are name, requires, package, output_dir, examples, collaborator, transformations, target_schema")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	p.Path = abs
	p.Dir = filepath.Dir(abs)

	if err := p.validate(); err != nil {
		return nil, errors.Wrapf(err, "project %s", path)
	}
	p.resolvePaths()
	return &p, nil
}

func (p *Project) validate() error {
	if p.Name == "" {
		p.Name = filepath.Base(p.Dir)
	}
	if len(p.Examples) == 0 {
		return errors.WithHint(errors.NewInvalidConfigError("no examples listed"),
			`add examples = ["examples/one.json", ...] to the descriptor`)
	}
	if p.Requires != "" {
		if _, err := semver.NewConstraint(p.Requires); err != nil {
			return errors.Mark(errors.Wrapf(err, "invalid requires constraint %q", p.Requires), errors.ErrInvalidConfig)
		}
	}
	for target, kind := range p.TargetSchema {
		if !knownKind(kind) {
			return errors.NewInvalidConfigError("target_schema.%s: unknown kind %q", target, kind)
		}
	}
	return nil
}

func knownKind(kind string) bool {
	switch kind {
	case "string", "integer", "float", "boolean", "date", "list", "object", "null", "mixed":
		return true
	}
	return false
}

func (p *Project) resolvePaths() {
	for i, ex := range p.Examples {
		p.Examples[i] = p.Resolve(ex)
	}
	if p.OutputDir != "" {
		p.OutputDir = p.Resolve(p.OutputDir)
	}
	if p.Collaborator != nil && p.Collaborator.Path != "" {
		p.Collaborator.Path = p.Resolve(p.Collaborator.Path)
	}
}

// Resolve makes a descriptor-relative path absolute.
func (p *Project) Resolve(path string) string {
	if filepath.IsAbs(path) || p.Dir == "" {
		return path
	}
	return filepath.Join(p.Dir, path)
}

// CheckVersion reports whether the running binary satisfies requires.
// Development builds always pass.
func (p *Project) CheckVersion(running string) error {
	if p.Requires == "" || running == "" || running == "dev" {
		return nil
	}
	ver, err := semver.NewVersion(strings.TrimPrefix(running, "v"))
	if err != nil {
		return errors.Wrapf(err, "invalid exemplar version %s", running)
	}
	constraint, err := semver.NewConstraint(p.Requires)
	if err != nil {
		return errors.Wrapf(err, "invalid version constraint %s", p.Requires)
	}
	if !constraint.Check(ver) {
		return errors.WithHintf(
			errors.NewInvalidConfigError("project %s requires exemplar %s, but running %s", p.Name, p.Requires, running),
			"upgrade exemplar or relax requires in %s", DescriptorName)
	}
	return nil
}

// WatchPaths lists the files whose change should trigger a re-analysis.
func (p *Project) WatchPaths() []string {
	paths := []string{p.Path}
	paths = append(paths, p.Examples...)
	if p.Collaborator != nil && p.Collaborator.Path != "" {
		paths = append(paths, p.Collaborator.Path)
	}
	return paths
}
