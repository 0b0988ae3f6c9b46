package entities

import "strconv"

// Principal is the identity requesting access: a user identifier plus the
// flat set of role names the identity carries. An empty ID means
// unauthenticated.
type Principal struct {
	ID    string
	Roles []string
}

// HasRole reports whether the principal carries the named role
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// EvaluationContext carries the data a policy condition may reference.
// It is built per check from the principal and the catalogue under
// evaluation, and discarded when the check returns.
type EvaluationContext struct {
	PrincipalID    string
	PrincipalRoles []string

	// Attributes copied from the catalogue being evaluated
	Reference          string
	ReferenceType      int
	ClassificationCode string
	SecurityCode       string
	Path               string
	CustomAttrs        map[string]any
}

// NewEvaluationContext builds the context for evaluating policy conditions
// against the given catalogue on behalf of the given principal.
func NewEvaluationContext(principal *Principal, catalogue *Catalogue) *EvaluationContext {
	ctx := &EvaluationContext{}
	if principal != nil {
		ctx.PrincipalID = principal.ID
		ctx.PrincipalRoles = principal.Roles
	}
	if catalogue != nil {
		ctx.Reference = catalogue.Reference
		ctx.ReferenceType = catalogue.ReferenceType
		ctx.ClassificationCode = catalogue.ClassificationCode
		ctx.SecurityCode = catalogue.SecurityCode
		ctx.Path = catalogue.Path
		ctx.CustomAttrs = catalogue.CustomAttrs
	}
	return ctx
}

// Property resolves a condition property by name. Known names map to the
// typed fields; anything else is looked up in the custom attribute map.
// The second return value is false when the property is absent.
func (c *EvaluationContext) Property(name string) (any, bool) {
	switch name {
	case "principalId":
		return c.PrincipalID, true
	case "principalRoles":
		return c.PrincipalRoles, true
	case "reference":
		return c.Reference, true
	case "referenceType":
		return c.ReferenceType, true
	case "classificationCode":
		return c.ClassificationCode, true
	case "securityCode":
		return c.SecurityCode, true
	case "path":
		return c.Path, true
	}
	if c.CustomAttrs != nil {
		if v, ok := c.CustomAttrs[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// AttributeMap returns the context as a flat map, used for CEL expression
// conditions. Custom attributes never shadow the named properties.
func (c *EvaluationContext) AttributeMap() map[string]any {
	m := make(map[string]any, len(c.CustomAttrs)+5)
	for k, v := range c.CustomAttrs {
		m[k] = v
	}
	m["reference"] = c.Reference
	m["referenceType"] = c.ReferenceType
	m["classificationCode"] = c.ClassificationCode
	m["securityCode"] = c.SecurityCode
	m["path"] = c.Path
	return m
}

// StringifyValue renders a property value in its canonical string form,
// matching how condition values are compared.
func StringifyValue(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		// JSON numbers decode as float64; render integral values without
		// a fractional part so "3" compares equal to 3
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10), true
		}
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case nil:
		return "", false
	}
	return "", false
}
