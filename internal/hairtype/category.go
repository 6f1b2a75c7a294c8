// Package hairtype defines the hair texture categories recognized by the detector
// and the care guidance shown for each of them.
package hairtype

import "strings"

// Category is a hair texture class label. The four canonical values are
// lowercase; any other value is carried through unchanged and resolves to the
// placeholder guidance record.
type Category string

// Canonical hair texture categories.
const (
	Straight Category = "straight"
	Wavy     Category = "wavy"
	Curly    Category = "curly"
	Coily    Category = "coily"
)

// all lists the categories in canonical order.
var all = []Category{Straight, Wavy, Curly, Coily}

// All returns the canonical categories in order.
func All() []Category {
	out := make([]Category, len(all))
	copy(out, all)
	return out
}

// Parse normalizes a raw label to its canonical lowercase form.
// The boolean reports whether the label is one of the four known categories.
// Parse never fails: unknown labels are returned trimmed and lowercased.
func Parse(label string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(label)))
	return c, c.Known()
}

// Known reports whether c is one of the canonical categories.
func (c Category) Known() bool {
	switch c {
	case Straight, Wavy, Curly, Coily:
		return true
	}
	return false
}

// String returns the label.
func (c Category) String() string {
	return string(c)
}

// Title returns the label with its first letter upper-cased, e.g. "Wavy".
func (c Category) Title() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}
