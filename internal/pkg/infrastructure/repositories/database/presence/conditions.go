package presence

import (
	"time"

	"gorm.io/gorm"
)

type ConditionFunc func(*Condition) *Condition

type Condition struct {
	Nickname string

	NotBefore time.Time
	NotAfter  time.Time

	offset *int
	limit  *int
}

func WithNickname(nickname string) ConditionFunc {
	return func(c *Condition) *Condition {
		c.Nickname = nickname
		return c
	}
}

// WithTimeSpan restricts matching reports to from <= created_at < to.
// Callers resolve calendar days to a half open span in whatever time
// zone they operate in.
func WithTimeSpan(from, to time.Time) ConditionFunc {
	return func(c *Condition) *Condition {
		c.NotBefore = from
		c.NotAfter = to
		return c
	}
}

func WithOffset(offset int) ConditionFunc {
	return func(c *Condition) *Condition {
		c.offset = &offset
		return c
	}
}

func WithLimit(limit int) ConditionFunc {
	return func(c *Condition) *Condition {
		c.limit = &limit
		return c
	}
}

func (c *Condition) apply(query *gorm.DB) *gorm.DB {
	if c.Nickname != "" {
		query = query.Where("nickname = ?", c.Nickname)
	}

	if !c.NotBefore.IsZero() {
		query = query.Where("created_at >= ?", c.NotBefore)
	}
	if !c.NotAfter.IsZero() {
		query = query.Where("created_at < ?", c.NotAfter)
	}

	return query
}

func (c *Condition) window(query *gorm.DB) *gorm.DB {
	if c.offset != nil {
		query = query.Offset(*c.offset)
	}
	if c.limit != nil {
		query = query.Limit(*c.limit)
	}

	return query
}
