package match

import "testing"

func TestEmptyPatternMatchesEverything(t *testing.T) {
	p, err := Compile("")
	if err != nil {
		t.Fatal(err)
	}
	for _, topic := range []string{"a", "a/b/c", ""} {
		if !p(topic) {
			t.Errorf("expected %q to match empty pattern", topic)
		}
	}
}

func TestNilSpecMatchesEverything(t *testing.T) {
	p, err := Compile(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !p("anything") {
		t.Error("expected nil spec to match everything")
	}
}

func TestLiteralSegments(t *testing.T) {
	p, err := Compile("foo/bar")
	if err != nil {
		t.Fatal(err)
	}
	if !p("foo/bar") {
		t.Error("expected exact match")
	}
	if p("foo/baz") {
		t.Error("expected no match for different segment")
	}
	if p("foo/bar/baz") {
		t.Error("expected no match for extra segment")
	}
}

func TestSingleStarMatchesOneSegment(t *testing.T) {
	p, err := Compile("foo/*")
	if err != nil {
		t.Fatal(err)
	}
	if !p("foo/bar") {
		t.Error("expected */ to match one segment")
	}
	if p("foo/bar/baz") {
		t.Error("expected * not to match across segments")
	}
	if p("foo") {
		t.Error("expected * to require a segment")
	}
}

func TestDoubleStarMatchesAcrossSegments(t *testing.T) {
	p, err := Compile("foo/**")
	if err != nil {
		t.Fatal(err)
	}
	for _, topic := range []string{"foo", "foo/bar", "foo/bar/baz"} {
		if !p(topic) {
			t.Errorf("expected %q to match foo/**", topic)
		}
	}
	if p("baz") {
		t.Error("expected baz not to match foo/**")
	}
}

func TestUnionMatchesIfAnyMatch(t *testing.T) {
	p, err := Compile([]string{"foo/*", "baz"})
	if err != nil {
		t.Fatal(err)
	}
	if !p("foo/x") || !p("baz") {
		t.Error("expected union to match either pattern")
	}
	if p("qux") {
		t.Error("expected union not to match unrelated topic")
	}
}

func TestEmptyUnionMatchesEverything(t *testing.T) {
	p, err := Compile([]string{})
	if err != nil {
		t.Fatal(err)
	}
	if !p("anything") {
		t.Error("expected empty union to match everything")
	}
}

func TestPredicatePassthrough(t *testing.T) {
	called := false
	custom := Predicate(func(string) bool { called = true; return true })
	p, err := Compile(custom)
	if err != nil {
		t.Fatal(err)
	}
	if !p("x") || !called {
		t.Error("expected predicate to be used directly")
	}
}

func TestCompileRejectsUnsupportedType(t *testing.T) {
	if _, err := Compile(42); err == nil {
		t.Fatal("expected error for unsupported spec type")
	}
}

func TestSpecExampleScenario2(t *testing.T) {
	p, err := Compile("/foo/**")
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]bool{
		"/foo/bar":   true,
		"/baz":       false,
		"/foo/x/y":   true,
	}
	for topic, want := range cases {
		if got := p(topic); got != want {
			t.Errorf("match(%q) = %v, want %v", topic, got, want)
		}
	}
}
