package aggregate

// Options controls null handling for every rule in a Context.
type Options struct {
	SkipNull      bool `json:"skipNull"`
	SkipUndefined bool `json:"skipUndefined"`

	// PreserveOrder is carried for callers that echo it. Collection order is
	// always item order then evaluation order.
	PreserveOrder bool `json:"preserveOrder"`
}

// DefaultOptions skips null and undefined values.
func DefaultOptions() Options {
	return Options{SkipNull: true, SkipUndefined: true}
}

// Context is an ordered rule list plus options. Immutable; the With* methods
// return new contexts, so one Context may be shared by concurrent aggregations.
type Context struct {
	rules   []DerivationRule
	options Options
}

// NewContext copies rules into a new context.
func NewContext(rules []DerivationRule, opts Options) Context {
	cp := make([]DerivationRule, len(rules))
	copy(cp, rules)
	return Context{rules: cp, options: opts}
}

// WithRule returns a context with r appended.
func (c Context) WithRule(r DerivationRule) Context {
	rules := make([]DerivationRule, len(c.rules), len(c.rules)+1)
	copy(rules, c.rules)
	return Context{rules: append(rules, r), options: c.options}
}

// WithOptions returns a context with opts replacing the current options.
func (c Context) WithOptions(opts Options) Context {
	return Context{rules: c.rules, options: opts}
}

// Rules returns a copy of the rule list.
func (c Context) Rules() []DerivationRule {
	cp := make([]DerivationRule, len(c.rules))
	copy(cp, c.rules)
	return cp
}

// Options returns the null-handling options.
func (c Context) Options() Options { return c.options }

// Len returns the number of rules.
func (c Context) Len() int { return len(c.rules) }
