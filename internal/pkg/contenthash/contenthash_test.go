package contenthash

import (
	"strings"
	"testing"
)

func TestComputeIsDeterministic(t *testing.T) {
	f := Fields{Title: "Hello", BodyMD: "# Body", SEODescription: "desc", Slug: "hello"}
	first := Compute(f)
	second := Compute(f)
	if first != second {
		t.Fatalf("expected identical hashes, got %q and %q", first, second)
	}
	if !strings.HasPrefix(first, Version+":") {
		t.Fatalf("expected %q prefix, got %q", Version+":", first)
	}
}

func TestComputeChangesWithEachObservableField(t *testing.T) {
	base := Fields{Title: "Hello", BodyMD: "body", SEODescription: "desc", Slug: "hello"}
	baseHash := Compute(base)

	mutations := map[string]Fields{
		"title":           {Title: "Hello!", BodyMD: "body", SEODescription: "desc", Slug: "hello"},
		"body":            {Title: "Hello", BodyMD: "body2", SEODescription: "desc", Slug: "hello"},
		"seo description": {Title: "Hello", BodyMD: "body", SEODescription: "desc2", Slug: "hello"},
		"slug":            {Title: "Hello", BodyMD: "body", SEODescription: "desc", Slug: "hello-2"},
	}
	for name, mutated := range mutations {
		if Compute(mutated) == baseHash {
			t.Fatalf("changing %s did not change the hash", name)
		}
	}
}

func TestComputeFieldBoundariesDoNotCollide(t *testing.T) {
	a := Compute(Fields{Title: "ab", BodyMD: "c"})
	b := Compute(Fields{Title: "a", BodyMD: "bc"})
	if a == b {
		t.Fatalf("field boundary collision: %q", a)
	}
}
