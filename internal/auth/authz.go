package auth

import (
	"github.com/mhub-dev/mhub/internal/config"
	"github.com/mhub-dev/mhub/internal/match"
)

// Authorizer is resolved once per HubClient at login/anonymous-attach time.
// Later changes to the rights table do not affect already-resolved
// Authorizers.
type Authorizer struct {
	publish   permResolver
	subscribe permResolver
}

// permResolver holds a resolved publish-or-subscribe permission spec: a
// global fallback plus per-node overrides.
type permResolver struct {
	hasGlobal   bool
	globalAllow bool
	globalSpec  any // non-nil when the global spec is a pattern, not a bare bool
	byNode      map[string]any
}

// Rights is the hub-wide rights table: username (empty string = anonymous)
// to that user's RightsSpec, plus whether any users or rights were
// configured at all.
type Rights struct {
	entries       map[string]config.RightsSpec
	anyConfigured bool
}

// NewRights builds a Rights table from the parsed config. anyConfigured
// should be true if either `users` or `rights` was present in the config
// file at all (even if empty). With neither present the system defaults to
// allow-everything for anonymous; once either is present, any user without
// an explicit rights entry defaults to deny-everything.
func NewRights(rights map[string]config.RightsSpec, anyConfigured bool) *Rights {
	return &Rights{entries: rights, anyConfigured: anyConfigured}
}

// AuthRequired reports whether any users or rights were configured at all.
// When false, connections are anonymous-attached without an explicit login.
func (r *Rights) AuthRequired() bool {
	return r.anyConfigured
}

// Resolve builds the Authorizer for username.
func (r *Rights) Resolve(username string) *Authorizer {
	if !r.anyConfigured {
		return allowAllAuthorizer()
	}
	spec, ok := r.entries[username]
	if !ok {
		return denyAllAuthorizer()
	}
	if spec.Allow != nil {
		if *spec.Allow {
			return allowAllAuthorizer()
		}
		return denyAllAuthorizer()
	}
	return &Authorizer{
		publish:   resolvePerm(spec.Publish),
		subscribe: resolvePerm(spec.Subscribe),
	}
}

func allowAllAuthorizer() *Authorizer {
	return &Authorizer{
		publish:   permResolver{hasGlobal: true, globalAllow: true},
		subscribe: permResolver{hasGlobal: true, globalAllow: true},
	}
}

func denyAllAuthorizer() *Authorizer {
	return &Authorizer{} // zero value: no global, no per-node entries -> deny
}

func resolvePerm(spec *config.PermSpec) permResolver {
	if spec == nil {
		return permResolver{}
	}
	if spec.Allow != nil {
		return permResolver{hasGlobal: true, globalAllow: *spec.Allow}
	}
	return permResolver{byNode: spec.ByNode}
}

// nodeSpec returns the effective spec for node: per-node override if
// present, else the global fallback, else "no spec" (default deny).
func (p permResolver) nodeSpec(node string) (spec any, hasSpec bool) {
	if p.byNode != nil {
		if v, ok := p.byNode[node]; ok {
			return v, true
		}
	}
	if p.hasGlobal {
		return p.globalAllow, true
	}
	return nil, false
}

// CanPublish reports whether this user may publish topic on node.
func (a *Authorizer) CanPublish(node, topic string) bool {
	spec, ok := a.publish.nodeSpec(node)
	if !ok {
		return false
	}
	return specAllows(spec, topic)
}

// SubscribeMatcher returns the user's subscribe predicate for node (the
// subscription engine ANDs it with the pattern the client supplies), or
// nil if subscription on node is wholly denied (the caller must then
// respond identically to the unknown-node case to avoid leaking existence).
func (a *Authorizer) SubscribeMatcher(node string) match.Predicate {
	spec, ok := a.subscribe.nodeSpec(node)
	if !ok {
		return nil
	}
	switch v := spec.(type) {
	case bool:
		if !v {
			return nil
		}
		return match.Always
	default:
		pred, err := match.Compile(v)
		if err != nil {
			return nil
		}
		return pred
	}
}

func specAllows(spec any, topic string) bool {
	switch v := spec.(type) {
	case bool:
		return v
	default:
		pred, err := match.Compile(v)
		if err != nil {
			return false
		}
		return pred(topic)
	}
}
