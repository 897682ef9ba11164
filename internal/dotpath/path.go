// Package dotpath implements the dotted-path value type used to key
// the ordered table map produced by the Schema Shredder: the flat
// dotted form is a rendering for map keys and SQL object names, and
// ordering by path length gives parent-first traversal.
package dotpath

import "strings"

// Path is a sequence of segments rooted at the stream name: the root
// table's Path is a single segment (the stream name); a child object
// property "address" under the root becomes ["<stream>", "address"].
type Path []string

// String renders the dotted form used as an ordered-map key, e.g.
// "users.address".
func (p Path) String() string {
	return strings.Join(p, ".")
}

// TableName renders the underscore-joined form used as the SQL table
// name, e.g. "users_address".
func (p Path) TableName() string {
	return strings.Join(p, "_")
}

// Child returns a new Path with segment appended.
func (p Path) Child(segment string) Path {
	child := make(Path, len(p), len(p)+1)
	copy(child, p)
	return append(child, segment)
}

// Len reports the number of segments, used to sort paths so that
// shorter (parent) paths are visited before longer (child) ones.
func (p Path) Len() int {
	return len(p)
}
