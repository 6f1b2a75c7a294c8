// Package detector provides hair texture detection backends and the
// post-processing that turns raw detections into an ordered set of categories.
package detector

import (
	"fmt"
	"image"
	"math"

	"github.com/ayusman/hairtype/internal/hairtype"
)

// Detection is one raw result produced by a Detector for one frame.
type Detection struct {
	Category   hairtype.Category `json:"category"`
	Confidence float64           `json:"confidence"`
	Region     image.Rectangle   `json:"region"`
}

// Entry is one distinct category in a DetectionSet together with the
// confidence of its first qualifying detection.
type Entry struct {
	Category   hairtype.Category `json:"category"`
	Confidence float64           `json:"confidence"`
}

// DetectionSet is the ordered, duplicate-free list of categories that survived
// confidence filtering for one frame. The zero value is an empty set.
type DetectionSet struct {
	entries []Entry
}

// Entries returns a copy of the set's entries in first-seen order.
func (s DetectionSet) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Categories returns the categories in first-seen order.
func (s DetectionSet) Categories() []hairtype.Category {
	out := make([]hairtype.Category, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Category
	}
	return out
}

// Len returns the number of distinct categories.
func (s DetectionSet) Len() int {
	return len(s.entries)
}

// Empty reports whether no category qualified.
func (s DetectionSet) Empty() bool {
	return len(s.entries) == 0
}

// Contains reports whether the set holds category c.
func (s DetectionSet) Contains(c hairtype.Category) bool {
	for _, e := range s.entries {
		if e.Category == c {
			return true
		}
	}
	return false
}

// Guidance resolves each category to its care guidance, in set order.
func (s DetectionSet) Guidance() []hairtype.Guidance {
	out := make([]hairtype.Guidance, len(s.entries))
	for i, e := range s.entries {
		out[i] = hairtype.Lookup(string(e.Category))
	}
	return out
}

// Normalize filters raw detections by confidence and deduplicates their
// categories while preserving the order of first appearance.
//
// A detection is kept when its confidence is at least threshold. The first kept
// detection of a category fixes that category's position and confidence; later
// duplicates are dropped without being merged. Categories outside the canonical
// set are passed through unchanged.
func Normalize(raw []Detection, threshold float64) DetectionSet {
	var set DetectionSet
	seen := make(map[hairtype.Category]struct{}, len(raw))

	for _, d := range raw {
		if !(d.Confidence >= threshold) {
			continue
		}
		c := d.Category
		if canonical, ok := hairtype.Parse(string(c)); ok {
			c = canonical
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		set.entries = append(set.entries, Entry{Category: c, Confidence: d.Confidence})
	}

	return set
}

// Filter returns the raw detections whose confidence is at least threshold,
// keeping their order. It is used to annotate frames with exactly the
// detections that fed the DetectionSet.
func Filter(raw []Detection, threshold float64) []Detection {
	out := make([]Detection, 0, len(raw))
	for _, d := range raw {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// ValidateThreshold returns an error wrapping ErrInvalidThreshold when t is not
// a number in [0, 1].
func ValidateThreshold(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidThreshold, t)
	}
	return nil
}
