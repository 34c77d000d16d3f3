package core

import "regexp"

// Two public hostnames front the same backend. Identity derivation has to be
// stable no matter which one a relying application loaded from, so the legacy
// icp0.io form is always rewritten to its ic0.app equivalent, even when only
// the legacy host is actually reachable.
var legacyOriginPattern = regexp.MustCompile(`^https://([\w-]+(?:\.raw)?)\.icp0\.io$`)

// CanonicalOrigin rewrites origins of the form https://<label>.icp0.io to
// https://<label>.ic0.app. Any other origin passes through unchanged,
// malformed ones included.
func CanonicalOrigin(origin Origin) Origin {
	m := legacyOriginPattern.FindStringSubmatch(string(origin))
	if m == nil {
		return origin
	}
	return Origin("https://" + m[1] + ".ic0.app")
}

// EffectiveOrigin picks the origin a delegation is scoped to: the derivation
// origin when the relying application supplied one, the request origin
// otherwise, in canonical form either way. Permission to use the derivation
// origin as an alias is the caller's responsibility.
func EffectiveOrigin(derivation, request Origin) Origin {
	if derivation != "" {
		return CanonicalOrigin(derivation)
	}
	return CanonicalOrigin(request)
}
