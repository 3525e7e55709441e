package profile

import (
	"conqueroj/pkg/errors"

	"github.com/google/shlex"
)

// LanguageSpec describes how to build and run one language inside its
// container image. Compile is empty for interpreted languages.
type LanguageSpec struct {
	Name       string `yaml:"name"`
	Image      string `yaml:"image"`
	SourceFile string `yaml:"sourceFile"`
	Compile    string `yaml:"compile"`
	Run        string `yaml:"run"`
}

// Compiled reports whether the language needs a build step before running.
func (s LanguageSpec) Compiled() bool {
	return s.Compile != ""
}

// CompileArgv tokenizes the compile command.
func (s LanguageSpec) CompileArgv() ([]string, error) {
	return splitCommand(s.Compile)
}

// RunArgv tokenizes the run command.
func (s LanguageSpec) RunArgv() ([]string, error) {
	return splitCommand(s.Run)
}

func splitCommand(cmd string) ([]string, error) {
	argv, err := shlex.Split(cmd)
	if err != nil {
		return nil, errors.Wrapf(err, errors.LanguageNotSupported, "invalid command template %q", cmd)
	}
	if len(argv) == 0 {
		return nil, errors.Newf(errors.LanguageNotSupported, "empty command template")
	}
	return argv, nil
}

// Registry resolves a submission language to its execution spec.
type Registry struct {
	specs    map[string]LanguageSpec
	fallback string
}

// NewRegistry builds a registry from specs. fallback names the spec used for
// unknown languages; it must exist in specs.
func NewRegistry(specs []LanguageSpec, fallback string) (*Registry, error) {
	m := make(map[string]LanguageSpec, len(specs))
	for _, spec := range specs {
		if spec.Name == "" || spec.Image == "" || spec.Run == "" || spec.SourceFile == "" {
			return nil, errors.Newf(errors.LanguageNotSupported, "incomplete language spec %q", spec.Name)
		}
		m[spec.Name] = spec
	}
	if _, ok := m[fallback]; !ok {
		return nil, errors.Newf(errors.LanguageNotSupported, "fallback language %q is not registered", fallback)
	}
	return &Registry{specs: m, fallback: fallback}, nil
}

// MustRegistry is NewRegistry for tables known at compile time; it panics on
// an invalid table.
func MustRegistry(specs []LanguageSpec, fallback string) *Registry {
	reg, err := NewRegistry(specs, fallback)
	if err != nil {
		panic(err)
	}
	return reg
}

// DefaultRegistry returns the built-in language table.
func DefaultRegistry() *Registry {
	return MustRegistry(DefaultSpecs(), "python")
}

// DefaultSpecs returns the built-in language specs.
func DefaultSpecs() []LanguageSpec {
	return []LanguageSpec{
		{
			Name:       "python",
			Image:      "python:3.9",
			SourceFile: "main.py",
			Run:        "python3 main.py",
		},
		{
			Name:       "c",
			Image:      "gcc:latest",
			SourceFile: "main.c",
			Compile:    "gcc main.c -o main",
			Run:        "./main",
		},
		{
			Name:       "cpp",
			Image:      "gcc:latest",
			SourceFile: "main.cpp",
			Compile:    "g++ main.cpp -o main",
			Run:        "./main",
		},
		{
			Name:       "java",
			Image:      "openjdk:11-jdk-slim",
			SourceFile: "Main.java",
			Compile:    "javac Main.java",
			Run:        "java Main",
		},
	}
}

// Resolve returns the spec for language, falling back to the default spec
// when the language is unknown.
func (r *Registry) Resolve(language string) LanguageSpec {
	if spec, ok := r.specs[language]; ok {
		return spec
	}
	return r.specs[r.fallback]
}

// Known reports whether the language is registered.
func (r *Registry) Known(language string) bool {
	_, ok := r.specs[language]
	return ok
}

// Languages lists the registered language names.
func (r *Registry) Languages() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	return names
}
