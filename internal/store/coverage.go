package store

import (
	"fmt"
	"sort"
	"time"
)

// RecordSegment appends one fully-synced window to the coverage log.
// Segments may overlap; coverage is their union.
func (db *DB) RecordSegment(conversationID, startTS, endTS int64, origin string) error {
	if endTS < startTS {
		return fmt.Errorf("segment end %d before start %d", endTS, startTS)
	}
	_, err := db.Exec(`
		INSERT INTO sync_segments (conversation_id, start_ts, end_ts, origin, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		conversationID, startTS, endTS, origin, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record segment: %w", err)
	}
	return nil
}

// Segments returns all recorded windows for a conversation, ordered by
// start time.
func (db *DB) Segments(conversationID int64) ([]Segment, error) {
	rows, err := db.Query(`
		SELECT id, conversation_id, start_ts, end_ts, origin, created_at
		FROM sync_segments
		WHERE conversation_id = ?
		ORDER BY start_ts ASC, end_ts ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var segs []Segment
	for rows.Next() {
		var s Segment
		if err := rows.Scan(&s.ID, &s.ConversationID, &s.StartTS, &s.EndTS, &s.Origin, &s.CreatedAt); err != nil {
			return nil, err
		}
		segs = append(segs, s)
	}
	return segs, rows.Err()
}

// MissingRanges returns the sub-intervals of [since, until] not covered
// by any recorded segment. An empty result means the window is fully
// covered; with no segments at all the whole window comes back.
func (db *DB) MissingRanges(conversationID, since, until int64) ([]Range, error) {
	segs, err := db.Segments(conversationID)
	if err != nil {
		return nil, err
	}
	return computeGaps(segs, since, until), nil
}

// computeGaps walks the segments in start order with a cursor at the
// window start. Each segment beginning past the cursor opens a gap up
// to the second before it; the cursor then jumps past the segment's
// end. Anything left after the last segment is the final gap.
func computeGaps(segs []Segment, since, until int64) []Range {
	if until < since {
		return nil
	}

	sorted := make([]Segment, len(segs))
	copy(sorted, segs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StartTS != sorted[j].StartTS {
			return sorted[i].StartTS < sorted[j].StartTS
		}
		return sorted[i].EndTS < sorted[j].EndTS
	})

	var gaps []Range
	cursor := since
	for _, s := range sorted {
		if s.EndTS < cursor {
			continue
		}
		if s.StartTS > until {
			break
		}
		if s.StartTS > cursor {
			gaps = append(gaps, Range{Start: cursor, End: min64(s.StartTS-1, until)})
		}
		if s.EndTS+1 > cursor {
			cursor = s.EndTS + 1
		}
		if cursor > until {
			return gaps
		}
	}
	if cursor <= until {
		gaps = append(gaps, Range{Start: cursor, End: until})
	}
	return gaps
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
