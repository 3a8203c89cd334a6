// Package filtergraph compiles text and sticker overlays into ffmpeg filter
// expressions. Compilation is pure: no filesystem or network access, so the
// compiler is thread-safe by construction.
//
// Filter strings are assembled from a typed parameter list rather than ad hoc
// concatenation so escaping is applied exactly once, at render time.
package filtergraph

import "strings"

// Param is a single key=value filter parameter. Values are emitted verbatim;
// anything needing escaping must be escaped before it becomes a Param.
type Param struct {
	Key   string
	Value string
}

// Filter is one named filter with its ordered parameter list
type Filter struct {
	Name   string
	Params []Param
}

// String renders the filter in ffmpeg syntax: name=k=v:k=v
func (f Filter) String() string {
	var b strings.Builder
	b.WriteString(f.Name)
	for i, p := range f.Params {
		if i == 0 {
			b.WriteByte('=')
		} else {
			b.WriteByte(':')
		}
		if p.Key != "" {
			b.WriteString(p.Key)
			b.WriteByte('=')
		}
		b.WriteString(p.Value)
	}
	return b.String()
}

// JoinChain renders filters as a sequential chain
func JoinChain(filters []Filter) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.String()
	}
	return strings.Join(parts, ",")
}

// Compiler turns timeline overlays into filter chains for a fixed canvas
type Compiler struct {
	platform Platform
	canvasW  int
	canvasH  int
}

// NewCompiler creates a compiler for the given host platform and canvas.
// The platform comes from an explicit host signal, never inferred.
func NewCompiler(platform Platform, canvasW, canvasH int) *Compiler {
	return &Compiler{
		platform: platform,
		canvasW:  canvasW,
		canvasH:  canvasH,
	}
}
