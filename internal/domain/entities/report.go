package entities

import (
	"encoding/json"
	"fmt"
)

// EmotionWeight is one entry of a quintile's top-emotion ranking. It
// serializes as a two-element JSON array ["name", score] to keep report files
// compact and stable for diffing.
type EmotionWeight struct {
	Name  string
	Score float64
}

func (w EmotionWeight) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{w.Name, w.Score})
}

func (w *EmotionWeight) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &w.Name); err != nil {
		return fmt.Errorf("emotion weight name: %w", err)
	}
	if err := json.Unmarshal(raw[1], &w.Score); err != nil {
		return fmt.Errorf("emotion weight score: %w", err)
	}
	return nil
}

// QuintileRecord is the aggregated emotional profile of one speaker within
// one quintile bucket.
type QuintileRecord struct {
	TimeRange       string          `json:"time_range"`
	DominantEmotion string          `json:"dominant_emotion"`
	EmotionScore    float64         `json:"emotion_score"`
	TopEmotions     []EmotionWeight `json:"top_emotions"`
}

// SpeakerQuintiles maps bucket keys ("quintile_1".."quintile_5") to records.
// Buckets where the speaker never spoke are absent.
type SpeakerQuintiles map[string]QuintileRecord

// QuintileReport is the primary analysis output: per speaker, per quintile
// emotional profiles over the whole conversation.
type QuintileReport struct {
	ConversationLength float64                     `json:"conversation_length_seconds"`
	Speakers           map[string]SpeakerQuintiles `json:"speakers"`
}

// QuintileKey renders the canonical bucket key for a zero-based bucket index.
func QuintileKey(bucket int) string {
	return fmt.Sprintf("quintile_%d", bucket+1)
}

// TableRow is one flattened row of the tabular report: a single segment with
// its emotion scores spread over fixed positional slots.
type TableRow struct {
	SpeakerID string
	StartTime float64
	EndTime   float64
	Quintile  int // bucket index 0..4, matching Segment.Quintile
	Text      string
	// Names and Scores are positional by vocabulary slot. Entries for
	// emotions absent from the segment are "" and 0.
	Names  [MaxEmotionSlots]string
	Scores [MaxEmotionSlots]float64
}

// FlatTable is the segment-level tabular view of an analysis, with a fixed
// emotion vocabulary shared by all rows.
type FlatTable struct {
	Vocabulary []string
	Rows       []TableRow
}
