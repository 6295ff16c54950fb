package relpath

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	p, err := New("some/path/to/file.txt")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	back, err := New(`some\path\to\file.txt`)
	if err != nil {
		t.Fatalf("New with backslashes failed: %v", err)
	}
	if p.String() != "some/path/to/file.txt" {
		t.Errorf("expected some/path/to/file.txt, got %s", p)
	}
	if !p.Equal(back) {
		t.Errorf("expected %q to equal %q", p, back)
	}

	var zero RelativePath
	if zero.String() != "" || !zero.IsRoot() {
		t.Errorf("expected zero value to be the root, got %q", zero)
	}

	for _, bad := range []string{"/absolute/path", "trailing/slash/", "/", `\leading`, `trailing\`} {
		_, err := New(bad)
		if !errors.Is(err, ErrInvalidPath) {
			t.Errorf("New(%q): expected ErrInvalidPath, got %v", bad, err)
		}
	}
}

func TestNew_Permissive(t *testing.T) {
	// Dot components and doubled separators are not rejected yet.
	for _, s := range []string{"some/../path", "some/./path", "some//path"} {
		if _, err := New(s); err != nil {
			t.Errorf("New(%q) unexpectedly failed: %v", s, err)
		}
	}
}

func TestFromOSPath(t *testing.T) {
	p, err := FromOSPath("docs/guide.md")
	if err != nil {
		t.Fatalf("FromOSPath failed: %v", err)
	}
	if p.String() != "docs/guide.md" {
		t.Errorf("expected docs/guide.md, got %s", p)
	}

	root, err := FromOSPath(".")
	if err != nil || !root.IsRoot() {
		t.Errorf("expected '.' to map to the root, got %q (%v)", root, err)
	}

	if _, err := FromOSPath("bad\xffname"); !errors.Is(err, ErrOSPathConversion) {
		t.Errorf("expected ErrOSPathConversion, got %v", err)
	}
}

func TestFileNameAndParent(t *testing.T) {
	p := MustNew("some/path/to/file.txt")
	if name, ok := p.FileName(); !ok || name != "file.txt" {
		t.Errorf("expected file.txt, got %q (%v)", name, ok)
	}
	if _, ok := Root().FileName(); ok {
		t.Error("expected no file name for the root")
	}

	parent, ok := p.Parent()
	if !ok || parent.String() != "some/path/to" {
		t.Errorf("expected parent some/path/to, got %q (%v)", parent, ok)
	}
	top, ok := MustNew("top").Parent()
	if !ok || !top.IsRoot() {
		t.Errorf("expected root parent, got %q (%v)", top, ok)
	}
	if _, ok := Root().Parent(); ok {
		t.Error("expected root to have no parent")
	}
}

func TestJoin(t *testing.T) {
	p, err := Root().Join("a")
	if err != nil || p.String() != "a" {
		t.Fatalf("expected a, got %q (%v)", p, err)
	}
	p, err = p.Join("b.txt")
	if err != nil || p.String() != "a/b.txt" {
		t.Fatalf("expected a/b.txt, got %q (%v)", p, err)
	}
	for _, bad := range []string{"", "x/y", `x\y`} {
		if _, err := p.Join(bad); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Join(%q): expected ErrInvalidPath, got %v", bad, err)
		}
	}
}

func TestComponents(t *testing.T) {
	p := MustNew("some/path/to/file.txt")

	c := p.Iter()
	for _, want := range []string{"some", "path", "to", "file.txt"} {
		got, ok := c.Next()
		if !ok || got != want {
			t.Fatalf("expected %q, got %q (%v)", want, got, ok)
		}
	}
	for i := 0; i < 2; i++ {
		if got, ok := c.Next(); ok {
			t.Errorf("expected exhausted cursor, got %q", got)
		}
	}

	// The sequence restarts on every range.
	first := slices.Collect(p.Components())
	second := slices.Collect(p.Components())
	if !slices.Equal(first, []string{"some", "path", "to", "file.txt"}) || !slices.Equal(first, second) {
		t.Errorf("unexpected components %v / %v", first, second)
	}

	if got := slices.Collect(Root().Components()); len(got) != 0 {
		t.Errorf("expected no components for the root, got %v", got)
	}
}

func TestComponents_RoundTrip(t *testing.T) {
	inputs := []string{"", "a", "a/b/c", `x\y\z.txt`, "a b/c!d/#e", "some//path", "some/../path"}
	for _, in := range inputs {
		p := MustNew(in)
		joined := strings.Join(slices.Collect(p.Components()), "/")
		want := strings.ReplaceAll(in, `\`, "/")
		if joined != want {
			t.Errorf("round trip of %q: got %q, want %q", in, joined, want)
		}
	}
}

func TestCursorStrings(t *testing.T) {
	c := MustNew("a/b/c/d/e.txt").Iter()
	if c.Full() != "a/b/c/d/e.txt" {
		t.Errorf("unexpected full string %q", c.Full())
	}
	if c.Accumulated() != "" {
		t.Errorf("expected empty accumulated string, got %q", c.Accumulated())
	}
	for _, want := range []string{"a", "a/b", "a/b/c", "a/b/c/d", "a/b/c/d/e.txt"} {
		c.Next()
		if c.Accumulated() != want {
			t.Errorf("expected accumulated %q, got %q", want, c.Accumulated())
		}
	}
	if !c.AtLast() {
		t.Error("expected cursor at last entry")
	}
	c.Next()
	if c.Accumulated() != "a/b/c/d/e.txt" {
		t.Errorf("accumulated string changed after exhaustion: %q", c.Accumulated())
	}
}

func TestOrdering(t *testing.T) {
	paths := []RelativePath{MustNew("a/b/c/d"), MustNew("a/b/c"), MustNew("a/b/d"), MustNew("a/b/c")}
	slices.SortFunc(paths, Compare)

	got := make([]string, len(paths))
	for i, p := range paths {
		got[i] = p.String()
	}
	want := []string{"a/b/c", "a/b/c", "a/b/c/d", "a/b/d"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestOrdering_ComponentNotByte(t *testing.T) {
	// '!' sorts below '/', so byte order puts "a/b!/c" first.
	if !("a/b!/c" < "a/b/c") {
		t.Fatal("expected byte order to place a/b!/c first")
	}
	special, plain := MustNew("a/b!/c"), MustNew("a/b/c")
	if Compare(special, plain) <= 0 {
		t.Error("expected a/b!/c to sort after a/b/c")
	}
	if !plain.Less(special) {
		t.Error("expected a/b/c to be less than a/b!/c")
	}
	if Compare(Root(), plain) >= 0 {
		t.Error("expected the root to sort first")
	}
	if plain.Compare(MustNew("a/b/c")) != 0 {
		t.Error("expected equal paths to compare equal")
	}
}

func TestCommonAncestor(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"a/b/c/d", "a/b/e/f", "a/b"},
		{"a/b/c", "a/b/c/d/e", "a/b/c"},
		{"a/b/c/d/e", "a/b/c", "a/b/c"},
		{"a/b/c", "d/e/f", ""},
		{"ab/c", "a/c", ""},
		{"a/bc", "a/b", "a"},
		{"", "a/b", ""},
		{"a/b", "", ""},
	}
	for _, tt := range tests {
		got := MustNew(tt.a).CommonAncestor(MustNew(tt.b))
		if got.String() != tt.want {
			t.Errorf("CommonAncestor(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}

	for _, s := range []string{"", "a", "a/b/c", "x y/z!"} {
		p := MustNew(s)
		if !p.CommonAncestor(p).Equal(p) {
			t.Errorf("expected CommonAncestor(%q, %q) to be itself", s, s)
		}
	}
}

func TestComponentsFromCommonAncestor(t *testing.T) {
	c := MustNew("a/b/c/d").ComponentsFromCommonAncestor(MustNew("a/b/e/f"))
	if c.Full() != "a/b/c/d" {
		t.Errorf("expected full a/b/c/d, got %q", c.Full())
	}
	if c.Accumulated() != "a/b" {
		t.Errorf("expected accumulated a/b, got %q", c.Accumulated())
	}
	if name, _ := c.Next(); name != "c" {
		t.Errorf("expected c, got %q", name)
	}
	if c.Accumulated() != "a/b/c" {
		t.Errorf("expected accumulated a/b/c, got %q", c.Accumulated())
	}
	if name, _ := c.Next(); name != "d" || !c.AtLast() {
		t.Errorf("expected d at last entry, got %q", name)
	}
	if _, ok := c.Next(); ok {
		t.Error("expected no more components")
	}

	fromRoot := MustNew("ab/c").ComponentsFromCommonAncestor(Root())
	if got := collect(fromRoot); !slices.Equal(got, []string{"ab", "c"}) {
		t.Errorf("expected [ab c] from the root, got %v", got)
	}

	same := MustNew("a/b").ComponentsFromCommonAncestor(MustNew("a/b"))
	if !same.AtLast() || same.Accumulated() != "a/b" {
		t.Errorf("expected exhausted cursor at a/b, got %q", same.Accumulated())
	}
}

func TestTextMarshaling(t *testing.T) {
	var p RelativePath
	if err := p.UnmarshalText([]byte(`docs\guide.md`)); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if p.String() != "docs/guide.md" {
		t.Errorf("expected docs/guide.md, got %s", p)
	}
	if err := p.UnmarshalText([]byte("/abs")); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("expected ErrInvalidPath, got %v", err)
	}
	text, _ := p.MarshalText()
	if string(text) != "docs/guide.md" {
		t.Errorf("unexpected marshaled text %q", text)
	}
}

func collect(c *Components) []string {
	var out []string
	for {
		name, ok := c.Next()
		if !ok {
			return out
		}
		out = append(out, name)
	}
}
