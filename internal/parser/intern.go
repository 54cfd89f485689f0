package parser

// StringIntern deduplicates tag and attribute names during a parse.
// Case files repeat a handful of names (OLXREC, OLNETFIELD, NAME, VALUE)
// millions of times; interning keeps one copy of each.
//
// A StringIntern belongs to one parse and is not safe for concurrent use.
type StringIntern struct {
	pool map[string]string
}

// MaxInternPoolSize stops the pool from growing on files with unbounded
// distinct names. Past the limit strings are returned as is.
const MaxInternPoolSize = 4096

// NewStringIntern creates a new string interner.
func NewStringIntern() *StringIntern {
	return &StringIntern{pool: make(map[string]string, 64)}
}

// Intern returns the canonical copy of s.
func (si *StringIntern) Intern(s string) string {
	if pooled, ok := si.pool[s]; ok {
		return pooled
	}
	if len(si.pool) >= MaxInternPoolSize {
		return s
	}
	si.pool[s] = s
	return s
}

// InternBytes interns b without allocating when the name is already pooled.
func (si *StringIntern) InternBytes(b []byte) string {
	if pooled, ok := si.pool[string(b)]; ok {
		return pooled
	}
	return si.Intern(string(b))
}

// Len returns the number of unique strings in the pool.
func (si *StringIntern) Len() int {
	return len(si.pool)
}

// Clear removes all interned strings.
func (si *StringIntern) Clear() {
	si.pool = make(map[string]string, 64)
}
