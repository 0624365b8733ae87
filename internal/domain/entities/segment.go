package entities

// MaxEmotionSlots is the maximum number of ranked emotion entries kept per
// segment. Vendor payloads may carry more; everything past the top 15 by
// score is discarded at normalization time.
const MaxEmotionSlots = 15

// NumQuintiles is the number of equal-length time buckets a conversation is
// partitioned into.
const NumQuintiles = 5

// EmotionScore is a single ranked emotion entry on a segment.
type EmotionScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Segment is the canonical unit of the analysis pipeline: one timed span of a
// single speaker's speech with its ranked emotion scores. Segments are
// immutable once produced by the normalizer; downstream components only read
// them.
type Segment struct {
	SpeakerID string         `json:"speaker_id"`
	StartTime float64        `json:"start_time"` // seconds
	EndTime   float64        `json:"end_time"`   // seconds
	Text      string         `json:"text"`
	Quintile  int            `json:"quintile"` // 0..4, assigned by the normalizer
	Emotions  []EmotionScore `json:"emotions"` // sorted descending by score, len <= MaxEmotionSlots
}

// Duration returns the speaking duration of the segment in seconds.
func (s *Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// Midpoint returns the temporal midpoint of the segment, used for quintile
// bucket assignment.
func (s *Segment) Midpoint() float64 {
	return (s.StartTime + s.EndTime) / 2
}

// SegmentTable is an ordered sequence of segments, sorted ascending by start
// time with ties kept in discovery order.
type SegmentTable struct {
	Segments           []Segment `json:"segments"`
	ConversationLength float64   `json:"conversation_length_seconds"`
	SkippedSpans       int       `json:"skipped_spans"`
	DroppedDuplicates  int       `json:"dropped_duplicates"`
}

// Speakers returns the distinct speaker ids in first-appearance order.
func (t *SegmentTable) Speakers() []string {
	seen := make(map[string]struct{}, 4)
	var out []string
	for i := range t.Segments {
		id := t.Segments[i].SpeakerID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
