// Package match compiles pattern specifications into topic predicates.
//
// Patterns are shell-style globs over slash-delimited topic segments: a
// segment of exactly "**" matches zero or more segments, and any other
// segment is matched against one topic segment with path.Match, so "*"
// matches any run of characters within a segment (never a slash). The empty
// string pattern always matches.
package match

import (
	"fmt"
	"path"
	"strings"
)

// Predicate reports whether a topic matches a compiled pattern.
type Predicate func(topic string) bool

// Always matches every topic.
func Always(string) bool { return true }

// Never matches no topic.
func Never(string) bool { return false }

// Compile turns a pattern spec into a Predicate. Accepted spec shapes:
//   - nil or "" (empty string): Always
//   - string: a single glob pattern
//   - []string: the union of the listed glob patterns (matches if any match)
//   - Predicate: returned unchanged
//
// Any other input type is a compile-time error.
func Compile(spec any) (Predicate, error) {
	switch v := spec.(type) {
	case nil:
		return Always, nil
	case Predicate:
		return v, nil
	case func(string) bool:
		return Predicate(v), nil
	case string:
		return compileOne(v)
	case []string:
		return compileUnion(v)
	default:
		return nil, fmt.Errorf("match: unsupported pattern spec type %T", spec)
	}
}

// MustCompile is like Compile but panics on error. Reserved for
// configuration paths that have already been validated.
func MustCompile(spec any) Predicate {
	p, err := Compile(spec)
	if err != nil {
		panic(err)
	}
	return p
}

func compileOne(pattern string) (Predicate, error) {
	if pattern == "" {
		return Always, nil
	}
	segments := strings.Split(pattern, "/")
	return func(topic string) bool {
		return matchSegments(segments, strings.Split(topic, "/"))
	}, nil
}

func compileUnion(patterns []string) (Predicate, error) {
	if len(patterns) == 0 {
		return Always, nil
	}
	compiled := make([]Predicate, 0, len(patterns))
	for _, p := range patterns {
		pred, err := compileOne(p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, pred)
	}
	return func(topic string) bool {
		for _, p := range compiled {
			if p(topic) {
				return true
			}
		}
		return false
	}, nil
}

// matchSegments recursively matches pattern segments against topic segments.
// "**" consumes zero or more topic segments; any other pattern segment
// consumes exactly one topic segment that it glob-matches.
func matchSegments(pattern, topic []string) bool {
	if len(pattern) == 0 {
		return len(topic) == 0
	}
	head := pattern[0]
	if head == "**" {
		if matchSegments(pattern[1:], topic) {
			return true
		}
		if len(topic) == 0 {
			return false
		}
		return matchSegments(pattern, topic[1:])
	}
	if len(topic) == 0 {
		return false
	}
	if ok, _ := path.Match(head, topic[0]); !ok {
		return false
	}
	return matchSegments(pattern[1:], topic[1:])
}
