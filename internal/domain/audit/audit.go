// Package audit provides the shared creation/update timestamps embedded in
// persisted entities.
package audit

import "time"

// Fields holds row timestamps. Entities embed it by value instead of
// inheriting a base entity.
type Fields struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Touch sets both timestamps for a freshly created entity.
func (f *Fields) Touch(now time.Time) {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
}
