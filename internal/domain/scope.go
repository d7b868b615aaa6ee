package domain

import (
	"encoding/json"
	"fmt"
)

// ScopeKind discriminates the three scope variants.
type ScopeKind string

const (
	ScopeGlobal  ScopeKind = "global"
	ScopeProduct ScopeKind = "product"
	ScopeSprint  ScopeKind = "sprint"
)

// Scope is the resource boundary a delegation applies to. Exactly one
// variant is active, selected by Kind; the ID fields for the other variants
// are empty. Construct through GlobalScope, ProductScope, or SprintScope so
// illegal combinations (both product and sprint set) cannot arise.
type Scope struct {
	Kind      ScopeKind
	ProductID string
	SprintID  string
}

// GlobalScope returns the unrestricted scope.
func GlobalScope() Scope {
	return Scope{Kind: ScopeGlobal}
}

// ProductScope returns a scope restricted to a single product.
func ProductScope(productID string) Scope {
	return Scope{Kind: ScopeProduct, ProductID: productID}
}

// SprintScope returns a scope restricted to a single sprint.
func SprintScope(sprintID string) Scope {
	return Scope{Kind: ScopeSprint, SprintID: sprintID}
}

// Validate checks that the scope has a known kind and exactly the ID its
// variant requires.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeGlobal:
		if s.ProductID != "" || s.SprintID != "" {
			return ErrValidation("global scope must not carry a product or sprint id")
		}
	case ScopeProduct:
		if s.ProductID == "" {
			return ErrValidation("product scope requires a product id")
		}
		if s.SprintID != "" {
			return ErrValidation("product scope must not carry a sprint id")
		}
	case ScopeSprint:
		if s.SprintID == "" {
			return ErrValidation("sprint scope requires a sprint id")
		}
		if s.ProductID != "" {
			return ErrValidation("sprint scope must not carry a product id")
		}
	default:
		return ErrValidation("unknown scope type %q", string(s.Kind))
	}
	return nil
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeProduct:
		return fmt.Sprintf("product:%s", s.ProductID)
	case ScopeSprint:
		return fmt.Sprintf("sprint:%s", s.SprintID)
	default:
		return "global"
	}
}

// scopeJSON is the wire shape: {"type": "...", "productId"?, "sprintId"?}.
type scopeJSON struct {
	Type      ScopeKind `json:"type"`
	ProductID string    `json:"productId,omitempty"`
	SprintID  string    `json:"sprintId,omitempty"`
}

// MarshalJSON emits only the fields relevant to the active variant.
func (s Scope) MarshalJSON() ([]byte, error) {
	return json.Marshal(scopeJSON{Type: s.Kind, ProductID: s.ProductID, SprintID: s.SprintID})
}

// UnmarshalJSON parses the wire shape and validates the variant.
func (s *Scope) UnmarshalJSON(data []byte) error {
	var raw scopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed := Scope{Kind: raw.Type, ProductID: raw.ProductID, SprintID: raw.SprintID}
	if err := parsed.Validate(); err != nil {
		return err
	}
	*s = parsed
	return nil
}
