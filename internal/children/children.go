// Package children resolves user-supplied child names to canonical names and storage namespaces.
package children

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoChildren is returned when the configuration lists no children at all.
	ErrNoChildren = errors.New("no children configured")
	// ErrUnknownChild is returned when a name matches neither a canonical name nor an alias.
	ErrUnknownChild = errors.New("unknown child")
	// ErrMissingCredentials is returned when a child has no portal login or password.
	ErrMissingCredentials = errors.New("missing portal credentials")
)

// Child is one configured child.
type Child struct {
	Name     string   `yaml:"name" json:"name"`
	Aliases  []string `yaml:"aliases" json:"aliases,omitempty"`
	Login    string   `yaml:"login" json:"-"`
	Password string   `yaml:"password" json:"-"`
}

// Credentials are the portal login details for one child.
type Credentials struct {
	Login    string
	Password string
}

// Resolver maps names and aliases to canonical child names.
type Resolver struct {
	children []Child
	index    map[string]int
}

// NewResolver builds a resolver. Duplicate canonical names or aliases that
// point at two different children are rejected.
func NewResolver(list []Child) (*Resolver, error) {
	if len(list) == 0 {
		return nil, ErrNoChildren
	}

	r := &Resolver{children: make([]Child, len(list)), index: make(map[string]int)}
	copy(r.children, list)

	for i, child := range r.children {
		if strings.TrimSpace(child.Name) == "" {
			return nil, fmt.Errorf("child #%d has no name", i+1)
		}
		for _, key := range append([]string{child.Name}, child.Aliases...) {
			k := normalize(key)
			if k == "" {
				continue
			}
			if prev, ok := r.index[k]; ok && prev != i {
				return nil, fmt.Errorf("name %q is used by both %q and %q", key, r.children[prev].Name, child.Name)
			}
			r.index[k] = i
		}
	}
	return r, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Resolve returns the canonical name for name. Unknown names come back unchanged,
// so Resolve(Resolve(x)) == Resolve(x) always holds.
func (r *Resolver) Resolve(name string) string {
	if i, ok := r.index[normalize(name)]; ok {
		return r.children[i].Name
	}
	return name
}

// Lookup returns the configured child for name, or ErrUnknownChild.
func (r *Resolver) Lookup(name string) (Child, error) {
	i, ok := r.index[normalize(name)]
	if !ok {
		return Child{}, fmt.Errorf("%w: %q", ErrUnknownChild, name)
	}
	return r.children[i], nil
}

// List returns the configured children in configuration order.
func (r *Resolver) List() []Child {
	out := make([]Child, len(r.children))
	copy(out, r.children)
	return out
}

// Credentials returns the portal login for a child.
func (r *Resolver) Credentials(name string) (Credentials, error) {
	child, err := r.Lookup(name)
	if err != nil {
		return Credentials{}, err
	}
	if child.Login == "" || child.Password == "" {
		return Credentials{}, fmt.Errorf("%w for %s", ErrMissingCredentials, child.Name)
	}
	return Credentials{Login: child.Login, Password: child.Password}, nil
}

// SafeName derives the storage namespace from a canonical name:
// lower case with spaces replaced by "-".
func SafeName(canonical string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(canonical)), " ", "-")
}

// Namespace resolves name and returns its storage namespace.
func (r *Resolver) Namespace(name string) string {
	return SafeName(r.Resolve(name))
}
