package graph

import (
	"fmt"
	"strings"
)

// PathSeg addresses one level within a composite port. A segment is either a
// positional index (list and unnamed bundle positions) or a field name
// (named bundle fields and dict keys).
type PathSeg struct {
	// Name is the field name for named positions. Empty for indexed segments.
	Name string

	// Index is the position for indexed segments. Ignored when Name is set.
	Index int
}

// Named returns a PathSeg addressing a named field.
func Named(name string) PathSeg {
	return PathSeg{Name: name}
}

// Indexed returns a PathSeg addressing a positional element.
func Indexed(i int) PathSeg {
	return PathSeg{Index: i}
}

// IsNamed reports whether the segment addresses by field name.
func (s PathSeg) IsNamed() bool {
	return s.Name != ""
}

// String renders the segment for diagnostics.
func (s PathSeg) String() string {
	if s.IsNamed() {
		return s.Name
	}
	return fmt.Sprintf("%d", s.Index)
}

// Path addresses a sub-position within a composite port tree. An empty path
// addresses the port itself.
type Path []PathSeg

// String renders the path as a dotted address for diagnostics.
func (p Path) String() string {
	if len(p) == 0 {
		return "."
	}
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// Equal reports whether two paths address the same position.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}
