package valuetype

import "fmt"

// Context is the named variable store the script engine reads and mutates.
// One Context is created per evaluation (spec §3's stated lifecycle) and
// must not be shared across concurrent evaluations.
type Context struct {
	scalars   map[string]ValueType
	arrays    map[string][]ValueType
	constants map[string]bool
	ignored   map[string]bool
	external  map[string]ValueType // injected bindings, e.g. trade terms
}

// NewContext builds an empty Context.
func NewContext() *Context {
	return &Context{
		scalars:   map[string]ValueType{},
		arrays:    map[string][]ValueType{},
		constants: map[string]bool{},
		ignored:   map[string]bool{},
		external:  map[string]ValueType{},
	}
}

// IsConstant reports whether name is registered as a constant (assignment forbidden).
func (c *Context) IsConstant(name string) bool { return c.constants[name] }

// IsIgnored reports whether name is registered as ignored (assignments/declarations discarded).
func (c *Context) IsIgnored(name string) bool { return c.ignored[name] }

// MarkConstant registers name as a constant.
func (c *Context) MarkConstant(name string) { c.constants[name] = true }

// MarkIgnored registers name as ignored.
func (c *Context) MarkIgnored(name string) { c.ignored[name] = true }

// Bind installs an externally-injected binding (e.g. a trade term) as a
// constant scalar.
func (c *Context) Bind(name string, v ValueType) {
	c.external[name] = v
	c.scalars[name] = v
	c.constants[name] = true
}

// DeclareScalar creates a new scalar variable. It is an error to redeclare
// an existing (non-ignored) name.
func (c *Context) DeclareScalar(name string, zero ValueType) error {
	if c.ignored[name] {
		return nil
	}
	if _, ok := c.scalars[name]; ok {
		return fmt.Errorf("variable %q already declared", name)
	}
	if _, ok := c.arrays[name]; ok {
		return fmt.Errorf("variable %q already declared", name)
	}
	c.scalars[name] = zero
	return nil
}

// DeclareArray creates a new array variable of the given size, filled with zero.
func (c *Context) DeclareArray(name string, size int, zero ValueType) error {
	if c.ignored[name] {
		return nil
	}
	if _, ok := c.scalars[name]; ok {
		return fmt.Errorf("variable %q already declared", name)
	}
	if _, ok := c.arrays[name]; ok {
		return fmt.Errorf("variable %q already declared", name)
	}
	if size < 0 {
		return fmt.Errorf("array %q has negative size %d", name, size)
	}
	arr := make([]ValueType, size)
	for i := range arr {
		arr[i] = zero
	}
	c.arrays[name] = arr
	return nil
}

// IsScalar reports whether name is a declared scalar.
func (c *Context) IsScalar(name string) bool {
	_, ok := c.scalars[name]
	return ok
}

// IsArray reports whether name is a declared array.
func (c *Context) IsArray(name string) bool {
	_, ok := c.arrays[name]
	return ok
}

// Scalar returns the value of a scalar variable.
func (c *Context) Scalar(name string) (ValueType, error) {
	v, ok := c.scalars[name]
	if !ok {
		return ValueType{}, fmt.Errorf("undeclared scalar %q", name)
	}
	return v, nil
}

// SetScalar overwrites a scalar variable's value directly (bypassing the
// masked-assignment rule; used for FOR-loop induction variables and by the
// engine after computing a masked select).
func (c *Context) SetScalar(name string, v ValueType) error {
	if c.constants[name] {
		return fmt.Errorf("cannot assign to constant %q", name)
	}
	if _, ok := c.scalars[name]; !ok {
		return fmt.Errorf("undeclared scalar %q", name)
	}
	c.scalars[name] = v
	return nil
}

// ArraySize returns the length of array name.
func (c *Context) ArraySize(name string) (int, error) {
	arr, ok := c.arrays[name]
	if !ok {
		return 0, fmt.Errorf("undeclared array %q", name)
	}
	return len(arr), nil
}

// ArrayElement returns element i (1-based) of array name.
func (c *Context) ArrayElement(name string, i int) (ValueType, error) {
	arr, ok := c.arrays[name]
	if !ok {
		return ValueType{}, fmt.Errorf("undeclared array %q", name)
	}
	if i < 1 || i > len(arr) {
		return ValueType{}, fmt.Errorf("index %d out of bounds for array %q of size %d", i, name, len(arr))
	}
	return arr[i-1], nil
}

// SetArrayElement overwrites element i (1-based) of array name.
func (c *Context) SetArrayElement(name string, i int, v ValueType) error {
	if c.constants[name] {
		return fmt.Errorf("cannot assign to constant %q", name)
	}
	arr, ok := c.arrays[name]
	if !ok {
		return fmt.Errorf("undeclared array %q", name)
	}
	if i < 1 || i > len(arr) {
		return fmt.Errorf("index %d out of bounds for array %q of size %d", i, name, len(arr))
	}
	arr[i-1] = v
	return nil
}

// Array returns the full backing slice of an array variable (used by
// SORT/PERMUTE, which operate on whole arrays).
func (c *Context) Array(name string) ([]ValueType, error) {
	arr, ok := c.arrays[name]
	if !ok {
		return nil, fmt.Errorf("undeclared array %q", name)
	}
	return arr, nil
}

// SetArray replaces the full backing slice of an array variable.
func (c *Context) SetArray(name string, vals []ValueType) error {
	if c.constants[name] {
		return fmt.Errorf("cannot assign to constant %q", name)
	}
	arr, ok := c.arrays[name]
	if !ok {
		return fmt.Errorf("undeclared array %q", name)
	}
	if len(vals) != len(arr) {
		return fmt.Errorf("array %q size mismatch: have %d, want %d", name, len(vals), len(arr))
	}
	copy(arr, vals)
	return nil
}
