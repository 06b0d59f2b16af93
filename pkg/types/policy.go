package types

// PolicyRule grants verbs on a resource. "*" matches any resource or verb.
type PolicyRule struct {
	Resource string   `json:"resource" yaml:"resource"`
	Verbs    []string `json:"verbs" yaml:"verbs"`
}

// Allows reports whether the rule grants verb on resource.
func (r PolicyRule) Allows(resource, verb string) bool {
	if r.Resource != "*" && r.Resource != resource {
		return false
	}
	for _, v := range r.Verbs {
		if v == "*" || v == verb {
			return true
		}
	}
	return false
}

// Policy represents a named set of API rules plus the capability strings
// used to filter restricted dashboard items.
type Policy struct {
	Namespace   string       `json:"namespace" yaml:"namespace"`
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Rules       []PolicyRule `json:"rules" yaml:"rules"`
	Permissions []string     `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Builtin     bool         `json:"builtin" yaml:"builtin"`
}

// Allows reports whether any rule of the policy grants verb on resource.
func (p *Policy) Allows(resource, verb string) bool {
	for _, r := range p.Rules {
		if r.Allows(resource, verb) {
			return true
		}
	}
	return false
}
