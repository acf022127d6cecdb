package deploy

import (
	"fmt"
	"regexp"
	"time"
)

// TagLayout formats deploy tags as UTC YYYYMMDDHHMMSS.
const TagLayout = "20060102150405"

var (
	timestampTag = regexp.MustCompile(`^\d{14}$`)
	// docker reference tag grammar
	imageTag = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]{0,127}$`)
)

// TagMinter issues timestamp tags that strictly increase within one process.
// When the clock has not moved past the previous tag, the next second is used.
type TagMinter struct {
	now  func() time.Time
	last time.Time
}

func NewTagMinter(now func() time.Time) *TagMinter {
	if now == nil {
		now = time.Now
	}
	return &TagMinter{now: now}
}

// Mint returns the next tag.
func (m *TagMinter) Mint() string {
	t := m.now().UTC().Truncate(time.Second)
	if !m.last.IsZero() && !t.After(m.last) {
		t = m.last.Add(time.Second)
	}
	m.last = t
	return t.Format(TagLayout)
}

// IsTimestampTag reports whether tag was minted by TagMinter.
func IsTimestampTag(tag string) bool {
	return timestampTag.MatchString(tag)
}

// ValidateTag checks a user supplied rollback tag against the image tag grammar.
// Whether the tag exists in the registry is not checked.
func ValidateTag(tag string) error {
	if tag == "" {
		return &Error{Kind: KindInvalid, Op: "validate tag", Err: fmt.Errorf("image tag is required")}
	}
	if !imageTag.MatchString(tag) {
		return &Error{Kind: KindInvalid, Op: "validate tag", Err: fmt.Errorf("%q is not a valid image tag", tag)}
	}
	return nil
}
