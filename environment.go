package obi

import (
	"fmt"
)

type Environment struct {
	outer     *Environment // Optional
	store     map[string]Value
	published []string
}

func NewEnvironment(outer *Environment) *Environment {
	return &Environment{
		outer: outer,
		store: map[string]Value{},
	}
}

func (self *Environment) Outer() *Environment {
	return self.outer
}

// Let binds a name in this environment, shadowing any outer binding.
func (self *Environment) Let(name string, value Value) {
	self.store[name] = value
}

func (self *Environment) Set(name string, value Value) error {
	env := self
	for env != nil {
		if _, ok := env.store[name]; ok {
			env.store[name] = value
			return nil
		}
		env = env.outer
	}
	return fmt.Errorf("Undefined variable '%s'.", name)
}

func (self *Environment) Get(name string) (Value, error) {
	env := self
	for env != nil {
		if value, ok := env.store[name]; ok {
			return value, nil
		}
		env = env.outer
	}
	return nil, fmt.Errorf("Undefined variable '%s'.", name)
}

// Ancestor returns the environment distance hops outward, or nil when the
// chain is shorter than that.
func (self *Environment) Ancestor(distance int) *Environment {
	env := self
	for i := 0; i < distance && env != nil; i += 1 {
		env = env.outer
	}
	return env
}

func (self *Environment) GetAt(distance int, name string) (Value, error) {
	env := self.Ancestor(distance)
	if env != nil {
		if value, ok := env.store[name]; ok {
			return value, nil
		}
	}
	return nil, fmt.Errorf("Undefined variable '%s'.", name)
}

func (self *Environment) SetAt(distance int, name string, value Value) error {
	env := self.Ancestor(distance)
	if env == nil {
		return fmt.Errorf("Undefined variable '%s'.", name)
	}
	env.store[name] = value
	return nil
}

// Publish marks a binding of this environment as exported. Names keep the
// order of their first publication.
func (self *Environment) Publish(name string) {
	for _, published := range self.published {
		if published == name {
			return
		}
	}
	self.published = append(self.published, name)
}

func (self *Environment) Published() []string {
	return append([]string(nil), self.published...)
}

// Return unwinds evaluation to the nearest enclosing function call.
type Return struct {
	Location *SourceLocation // Optional
	Value    Value
}

func (self *Return) Error() string {
	return "Can't return from top-level code."
}
