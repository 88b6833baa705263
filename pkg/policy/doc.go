// Package policy provides the policy source abstraction: the rule and
// filter types, the Loader strategy interface, and its three
// implementations (database query, rule file, remote API).
//
// A Loader fetches the complete rule set from its source, applies the
// configured resource filter, and installs the result into the
// enforcement engine as one atomic bulk replacement. The filter is
// pushed into the source where possible (a parameterized IN predicate
// for the database variant) and applied client-side otherwise, so the
// loaded set is identical regardless of source type.
//
// Loader selection is driven by SourceConfig, whose SourceType is a
// closed enumeration; an unknown type is rejected when the
// configuration is parsed, not discovered at load time.
package policy
