package service

import (
	"sort"

	"github.com/noah-isme/timetable-api/internal/models"
)

// Consolidate merges runs of equal adjacent sessions into schedule blocks. The
// input must be ordered by day then start time; every change of day starts a
// new output list, so the result holds one list per day in input order.
func Consolidate(sessions []models.Session) [][]models.Schedule {
	var days [][]models.Schedule
	start := 0
	for i := 1; i <= len(sessions); i++ {
		if i == len(sessions) || sessions[i].DayOfWeek != sessions[start].DayOfWeek {
			days = append(days, consolidateDay(sessions[start:i]))
			start = i
		}
	}
	if days == nil {
		return [][]models.Schedule{}
	}
	return days
}

// ConsolidateGrid consolidates the sessions of t into one list per day of the
// timetable, in column order. Cells outside the grid are ignored and a day
// without sessions yields an empty list.
func ConsolidateGrid(t models.Timetable, sessions []models.Session) [][]models.Schedule {
	days := t.Days()
	buckets := make([][]models.Session, len(days))
	for _, s := range sessions {
		if !t.Contains(s.DayOfWeek, s.StartTime) {
			continue
		}
		idx := t.DayIndex(s.DayOfWeek)
		buckets[idx] = append(buckets[idx], s)
	}

	out := make([][]models.Schedule, len(days))
	for i, bucket := range buckets {
		sort.SliceStable(bucket, func(a, b int) bool { return bucket[a].StartTime < bucket[b].StartTime })
		out[i] = []models.Schedule{}
		if blocks := Consolidate(bucket); len(blocks) == 1 {
			out[i] = blocks[0]
		}
	}
	return out
}

func consolidateDay(sessions []models.Session) []models.Schedule {
	blocks := make([]models.Schedule, 0, len(sessions))
	if len(sessions) == 0 {
		return blocks
	}

	first := sessions[0]
	span := 1
	// A missing hour ends the block, so a span never covers an hour without a cell.
	for i := 1; i < len(sessions); i++ {
		prev, cur := sessions[i-1], sessions[i]
		if cur.StartTime == prev.StartTime+1 && sameContent(prev.Content, cur.Content) {
			span++
			continue
		}
		blocks = append(blocks, newBlock(first, span))
		first, span = cur, 1
	}
	return append(blocks, newBlock(first, span))
}

func newBlock(s models.Session, span int) models.Schedule {
	return models.Schedule{
		DayOfWeek:  s.DayOfWeek,
		StartTime:  s.StartTime,
		PeriodSpan: span,
		Content:    models.ContentOrEmpty(s.Content),
	}
}

// sameContent decides whether two neighbouring cells render as one block.
// Subject cells compare by cross-ref identity, breaks by description, vacant
// cells always merge and empty cells never do.
func sameContent(a, b models.SessionContent) bool {
	switch x := a.(type) {
	case models.SubjectContent:
		y, ok := b.(models.SubjectContent)
		return ok && x.CrossRefID == y.CrossRefID
	case models.BreakContent:
		y, ok := b.(models.BreakContent)
		return ok && sameLabel(x.Description, y.Description)
	case models.VacantContent:
		_, ok := b.(models.VacantContent)
		return ok
	default:
		return false
	}
}

func sameLabel(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Resolve attaches catalog data to subject blocks. Blocks whose cross-ref is
// unknown are rendered as empty.
func Resolve(blocks [][]models.Schedule, entries map[string]models.CrossRefDetail) [][]models.Schedule {
	out := make([][]models.Schedule, len(blocks))
	for i, day := range blocks {
		resolved := make([]models.Schedule, len(day))
		for j, block := range day {
			if subject, ok := block.Content.(models.SubjectContent); ok {
				if entry, found := entries[subject.CrossRefID]; found {
					e := entry
					block.Entry = &e
				} else {
					block.Content = models.EmptyContent{}
					block.Entry = nil
				}
			}
			resolved[j] = block
		}
		out[i] = resolved
	}
	return out
}

// crossRefIDs lists the distinct cross-refs referenced by sessions.
func crossRefIDs(sessions []models.Session) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, s := range sessions {
		if id, ok := s.CrossRefID(); ok {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids
}
