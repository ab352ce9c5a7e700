package language

import (
	"sort"
	"strings"

	pkgerrors "codepractice/pkg/errors"
)

// Registry is the closed set of languages the service accepts.
type Registry struct {
	specs map[ID]Spec
}

// NewRegistry builds the table from the defaults with overrides applied.
// Overrides for unknown ids are ignored; the language set is fixed.
func NewRegistry(overrides []Spec) *Registry {
	specs := make(map[ID]Spec)
	for _, s := range DefaultSpecs() {
		specs[s.ID] = s
	}
	for _, o := range overrides {
		base, ok := specs[ID(strings.ToLower(string(o.ID)))]
		if !ok {
			continue
		}
		specs[base.ID] = mergeSpec(base, o)
	}
	return &Registry{specs: specs}
}

// Get returns the spec for id or LanguageNotSupported.
func (r *Registry) Get(id string) (Spec, error) {
	s, ok := r.specs[ID(strings.ToLower(strings.TrimSpace(id)))]
	if !ok {
		return Spec{}, pkgerrors.Newf(pkgerrors.LanguageNotSupported, "language %q is not supported", id)
	}
	return s, nil
}

// Supported reports whether id names a known language.
func (r *Registry) Supported(id string) bool {
	_, err := r.Get(id)
	return err == nil
}

// IDs lists the supported languages in a stable order.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.specs))
	for id := range r.specs {
		out = append(out, string(id))
	}
	sort.Strings(out)
	return out
}

func mergeSpec(base, o Spec) Spec {
	if o.SourceFile != "" {
		base.SourceFile = o.SourceFile
	}
	if o.BinaryFile != "" {
		base.BinaryFile = o.BinaryFile
	}
	if o.CompileCmd != "" {
		base.CompileCmd = o.CompileCmd
	}
	if o.RunCmd != "" {
		base.RunCmd = o.RunCmd
	}
	if len(o.Env) > 0 {
		base.Env = o.Env
	}
	if o.Mode != "" {
		base.Mode = o.Mode
	}
	base.CompileLimits = base.CompileLimits.Merge(o.CompileLimits)
	base.RunLimits = base.RunLimits.Merge(o.RunLimits)
	if o.TimeMultiplier > 0 {
		base.TimeMultiplier = o.TimeMultiplier
	}
	if o.MemoryMultiplier > 0 {
		base.MemoryMultiplier = o.MemoryMultiplier
	}
	return base
}
