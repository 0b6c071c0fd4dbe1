// Package toolchain holds the per-language compile and run policy.
package toolchain

import (
	"sort"

	"algojudge/internal/judge/model"
	appErr "algojudge/pkg/errors"
)

// LanguageSpec defines how to place, compile and run one language.
type LanguageSpec struct {
	ID             string `yaml:"id"`
	SourceFile     string `yaml:"sourceFile"`
	BinaryFile     string `yaml:"binaryFile"`
	CompileEnabled bool   `yaml:"compileEnabled"`
	CompileCmdTpl  string `yaml:"compileCmd"`
	RunCmdTpl      string `yaml:"runCmd"`

	// Candidates are tried in order; bare names are searched on PATH.
	Compilers []string `yaml:"compilers"`
	Runtimes  []string `yaml:"runtimes"`

	Env []string `yaml:"env"`

	TimeMultiplier   float64 `yaml:"timeMultiplier"`
	MemoryMultiplier float64 `yaml:"memoryMultiplier"`

	// AddressSpaceSlackMB is added to the memory limit to form RLIMIT_AS.
	// Runtimes that reserve large virtual ranges up front need more.
	AddressSpaceSlackMB int64 `yaml:"addressSpaceSlackMB"`

	// PIDs bounds tasks in the run cgroup. The JVM needs several threads.
	PIDs int64 `yaml:"pids"`

	// EntryFromSource names the source file after the top-level public type.
	EntryFromSource bool `yaml:"entryFromSource"`
}

// DefaultLanguages returns the audited built-in policy for python, cpp and java.
func DefaultLanguages() []LanguageSpec {
	return []LanguageSpec{
		{
			ID:                  model.LanguagePython,
			SourceFile:          "main.py",
			RunCmdTpl:           "{runtime} -B {src}",
			Runtimes:            []string{"python3", "python"},
			Env:                 []string{"PYTHONDONTWRITEBYTECODE=1", "PYTHONIOENCODING=utf-8"},
			TimeMultiplier:      2,
			MemoryMultiplier:    1,
			AddressSpaceSlackMB: 128,
			PIDs:                8,
		},
		{
			ID:                  model.LanguageCpp,
			SourceFile:          "main.cpp",
			BinaryFile:          "main",
			CompileEnabled:      true,
			CompileCmdTpl:       "{compiler} -O2 -std=c++17 -Wall -o {bin} {src}",
			RunCmdTpl:           "{bin}",
			Compilers:           []string{"g++", "c++", "clang++"},
			TimeMultiplier:      1,
			MemoryMultiplier:    1,
			AddressSpaceSlackMB: 16,
			PIDs:                8,
		},
		{
			ID:                  model.LanguageJava,
			CompileEnabled:      true,
			CompileCmdTpl:       "{compiler} -encoding UTF-8 -Xlint -d {dir} {src}",
			RunCmdTpl:           "{runtime} -Xmx{memoryMB}m -Xss64m -XX:+UseSerialGC -XX:TieredStopAtLevel=1 -cp {dir} {entry}",
			Compilers:           []string{"javac"},
			Runtimes:            []string{"java"},
			Env:                 []string{"JAVA_TOOL_OPTIONS=-Dfile.encoding=UTF-8"},
			TimeMultiplier:      2,
			MemoryMultiplier:    2,
			AddressSpaceSlackMB: 2048,
			PIDs:                64,
			EntryFromSource:     true,
		},
	}
}

// Registry is the per-language policy table.
type Registry struct {
	langs map[string]LanguageSpec
}

// NewRegistry builds a registry. Later entries override earlier ones with the same ID.
func NewRegistry(specs ...LanguageSpec) *Registry {
	r := &Registry{langs: make(map[string]LanguageSpec, len(specs))}
	for _, spec := range specs {
		if spec.ID == "" {
			continue
		}
		r.langs[spec.ID] = spec
	}
	return r
}

// DefaultRegistry returns a registry with the built-in languages.
func DefaultRegistry() *Registry {
	return NewRegistry(DefaultLanguages()...)
}

// Lookup returns the policy for a language.
func (r *Registry) Lookup(lang string) (LanguageSpec, error) {
	spec, ok := r.langs[lang]
	if !ok {
		return LanguageSpec{}, appErr.Newf(appErr.LanguageNotSupported, "language not supported: %s", lang)
	}
	return spec, nil
}

// Languages lists registered language ids in sorted order.
func (r *Registry) Languages() []string {
	ids := make([]string, 0, len(r.langs))
	for id := range r.langs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
