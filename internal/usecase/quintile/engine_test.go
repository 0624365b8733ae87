package quintile

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/talkscope-team/talkscope/internal/domain/entities"
)

func span(begin, end float64, text string, scoreField string, scores ...any) map[string]any {
	entries := make([]map[string]any, 0, len(scores)/2)
	for i := 0; i+1 < len(scores); i += 2 {
		entries = append(entries, map[string]any{
			"name":  scores[i],
			"score": scores[i+1],
		})
	}
	return map[string]any{
		"time":     map[string]any{"begin": begin, "end": end},
		"text":     text,
		scoreField: entries,
	}
}

func prosodyPayload(groups map[string][]map[string]any) []byte {
	return channelPayload(groups, nil)
}

func channelPayload(prosodyGroups map[string][]map[string]any, languageGroups map[string][]map[string]any) []byte {
	models := map[string]any{}
	if prosodyGroups != nil {
		models["prosody"] = map[string]any{"grouped_predictions": toGroups(prosodyGroups)}
	}
	if languageGroups != nil {
		models["language"] = map[string]any{"grouped_predictions": toGroups(languageGroups)}
	}
	payload := []map[string]any{
		{
			"source": map[string]any{"type": "file", "filename": "meeting.wav"},
			"results": map[string]any{
				"predictions": []map[string]any{{"models": models}},
			},
		},
	}
	b, _ := json.Marshal(payload)
	return b
}

func toGroups(groups map[string][]map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(groups))
	for id, spans := range groups {
		out = append(out, map[string]any{"id": id, "predictions": spans})
	}
	return out
}

func TestAnalyze_SingleSpeakerTwoSegments(t *testing.T) {
	payload := prosodyPayload(map[string][]map[string]any{
		"A": {
			span(0, 10, "hello", "emotions", "Joy", 0.8, "Calm", 0.2),
			span(10, 20, "bye", "emotions", "Joy", 0.4, "Anger", 0.6),
		},
	})

	res, err := NewEngine(nil).Analyze(payload)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	if res.Report.ConversationLength != 20 {
		t.Fatalf("expected conversation length 20 got %v", res.Report.ConversationLength)
	}

	a, ok := res.Report.Speakers["A"]
	if !ok {
		t.Fatalf("missing speaker A")
	}

	// quintile size is 4s: midpoint 5 lands in bucket 1, midpoint 15 in bucket 3
	q2, ok := a["quintile_2"]
	if !ok {
		t.Fatalf("missing quintile_2, got %v", a)
	}
	if q2.DominantEmotion != "Joy" || math.Abs(q2.EmotionScore-0.8) > 1e-9 {
		t.Fatalf("quintile_2: expected Joy 0.8 got %s %v", q2.DominantEmotion, q2.EmotionScore)
	}
	if q2.TimeRange != "4.00-8.00s" {
		t.Fatalf("unexpected time range %s", q2.TimeRange)
	}

	q4, ok := a["quintile_4"]
	if !ok {
		t.Fatalf("missing quintile_4")
	}
	if q4.DominantEmotion != "Anger" || math.Abs(q4.EmotionScore-0.6) > 1e-9 {
		t.Fatalf("quintile_4: expected Anger 0.6 got %s %v", q4.DominantEmotion, q4.EmotionScore)
	}

	for _, key := range []string{"quintile_1", "quintile_3", "quintile_5"} {
		if _, present := a[key]; present {
			t.Fatalf("bucket %s should be absent", key)
		}
	}
}

func TestAggregate_WeightsSumToOne(t *testing.T) {
	// Two segments in one bucket with durations 3 and 7 both scoring
	// Joy at 1.0. If weights sum to 1 the aggregate is exactly 1.0.
	table := &entities.SegmentTable{
		ConversationLength: 100,
		Segments: []entities.Segment{
			{SpeakerID: "A", StartTime: 0, EndTime: 3, Quintile: 0,
				Emotions: []entities.EmotionScore{{Name: "Joy", Score: 1.0}}},
			{SpeakerID: "A", StartTime: 3, EndTime: 10, Quintile: 0,
				Emotions: []entities.EmotionScore{{Name: "Joy", Score: 1.0}}},
		},
	}

	speakers := Aggregate(table)
	record, ok := speakers["A"]["quintile_1"]
	if !ok {
		t.Fatalf("missing quintile_1 record")
	}
	if math.Abs(record.EmotionScore-1.0) > 1e-9 {
		t.Fatalf("expected weighted score 1.0 got %v", record.EmotionScore)
	}
}

func TestNormalize_MidpointAtEndClampsToLastBucket(t *testing.T) {
	// A zero-length segment at the very end has its midpoint exactly on
	// the conversation end and must land in bucket 4, not 5.
	payload := prosodyPayload(map[string][]map[string]any{
		"A": {
			span(0, 10, "", "emotions", "Joy", 0.5),
			span(10, 10, "", "emotions", "Calm", 0.5),
		},
	})

	table, err := NewNormalizer().Normalize(payload)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	for i := range table.Segments {
		q := table.Segments[i].Quintile
		if q < 0 || q > 4 {
			t.Fatalf("quintile %d out of range", q)
		}
	}
	last := table.Segments[len(table.Segments)-1]
	if last.Midpoint() != table.ConversationLength {
		t.Fatalf("test setup: expected midpoint on conversation end")
	}
	if last.Quintile != 4 {
		t.Fatalf("expected bucket 4 for end midpoint got %d", last.Quintile)
	}
}

func TestSelectVocabulary_SortedAndBounded(t *testing.T) {
	segments := []entities.Segment{}
	// Joy appears three times, Calm twice, Anger once; 16 filler names
	// appear once each so the vocabulary must be truncated to 15.
	filler := []string{"E01", "E02", "E03", "E04", "E05", "E06", "E07", "E08",
		"E09", "E10", "E11", "E12", "E13", "E14", "E15", "E16"}
	for i := 0; i < 3; i++ {
		segments = append(segments, entities.Segment{
			Emotions: []entities.EmotionScore{{Name: "Joy", Score: 0.5}},
		})
	}
	for i := 0; i < 2; i++ {
		segments = append(segments, entities.Segment{
			Emotions: []entities.EmotionScore{{Name: "Calm", Score: 0.5}},
		})
	}
	segments = append(segments, entities.Segment{
		Emotions: []entities.EmotionScore{{Name: "Anger", Score: 0.5}},
	})
	for _, name := range filler {
		segments = append(segments, entities.Segment{
			Emotions: []entities.EmotionScore{{Name: name, Score: 0.5}},
		})
	}

	vocab := SelectVocabulary(&entities.SegmentTable{Segments: segments})
	if len(vocab) != entities.MaxEmotionSlots {
		t.Fatalf("expected %d names got %d", entities.MaxEmotionSlots, len(vocab))
	}
	if vocab[0] != "Joy" || vocab[1] != "Calm" {
		t.Fatalf("expected Joy, Calm leading, got %v", vocab[:2])
	}
	// All remaining names are tied at one occurrence and must come out in
	// lexicographic order.
	rest := vocab[2:]
	for i := 1; i < len(rest); i++ {
		if rest[i-1] >= rest[i] {
			t.Fatalf("tied names not lexicographically ordered: %v", rest)
		}
	}
}

func TestAnalyze_Idempotent(t *testing.T) {
	payload := prosodyPayload(map[string][]map[string]any{
		"A": {
			span(0, 10, "one", "emotions", "Joy", 0.8, "Calm", 0.2),
			span(10, 20, "two", "emotions", "Anger", 0.6, "Joy", 0.4),
		},
		"B": {
			span(2, 6, "three", "emotions", "Calm", 0.9),
		},
	})

	engine := NewEngine(nil)
	first, err := engine.Analyze(payload)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := engine.Analyze(payload)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	firstJSON, _ := json.Marshal(first.Report)
	secondJSON, _ := json.Marshal(second.Report)
	if string(firstJSON) != string(secondJSON) {
		t.Fatalf("reports differ between runs")
	}
	if !reflect.DeepEqual(first.Table, second.Table) {
		t.Fatalf("tables differ between runs")
	}
}

func TestAnalyze_TwoSpeakersIndependentBuckets(t *testing.T) {
	payload := prosodyPayload(map[string][]map[string]any{
		"A": {span(0, 4, "", "emotions", "Joy", 0.9)},
		"B": {span(0, 4, "", "emotions", "Anger", 0.7)},
	})

	res, err := NewEngine(nil).Analyze(payload)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	a := res.Report.Speakers["A"]["quintile_1"]
	b := res.Report.Speakers["B"]["quintile_1"]
	if a.DominantEmotion != "Joy" {
		t.Fatalf("speaker A leaked data: got %s", a.DominantEmotion)
	}
	if b.DominantEmotion != "Anger" {
		t.Fatalf("speaker B leaked data: got %s", b.DominantEmotion)
	}
	if len(a.TopEmotions) != 1 || len(b.TopEmotions) != 1 {
		t.Fatalf("cross-speaker emotion leakage: %v / %v", a.TopEmotions, b.TopEmotions)
	}
}

func TestAggregate_ZeroDurationBucketOmitted(t *testing.T) {
	table := &entities.SegmentTable{
		ConversationLength: 100,
		Segments: []entities.Segment{
			{SpeakerID: "A", StartTime: 5, EndTime: 5, Quintile: 0,
				Emotions: []entities.EmotionScore{{Name: "Joy", Score: 0.9}}},
			{SpeakerID: "A", StartTime: 50, EndTime: 60, Quintile: 2,
				Emotions: []entities.EmotionScore{{Name: "Calm", Score: 0.5}}},
		},
	}

	speakers := Aggregate(table)
	if _, present := speakers["A"]["quintile_1"]; present {
		t.Fatalf("zero-duration bucket must be omitted")
	}
	if _, present := speakers["A"]["quintile_3"]; !present {
		t.Fatalf("non-empty bucket missing")
	}
}

func TestNormalize_DuplicateAcrossChannelsFirstWins(t *testing.T) {
	payload := channelPayload(
		map[string][]map[string]any{
			"A": {span(0, 10, "hi", "emotions", "Joy", 0.8)},
		},
		map[string][]map[string]any{
			"A": {
				span(0, 10, "hi", "sentiment", "Negative", 0.9),
				span(10, 20, "more", "sentiment", "Positive", 0.7),
			},
		})

	table, err := NewNormalizer().Normalize(payload)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(table.Segments) != 2 {
		t.Fatalf("expected 2 segments got %d", len(table.Segments))
	}
	if table.DroppedDuplicates != 1 {
		t.Fatalf("expected 1 dropped duplicate got %d", table.DroppedDuplicates)
	}

	first := table.Segments[0]
	if first.Emotions[0].Name != "Joy" {
		t.Fatalf("prosody channel must win for the duplicate key, got %s", first.Emotions[0].Name)
	}

	// The flat table must not carry a second row for the duplicate key.
	flat := BuildTable(table, SelectVocabulary(table))
	keyCount := 0
	for _, row := range flat.Rows {
		if row.SpeakerID == "A" && row.StartTime == 0 && row.EndTime == 10 {
			keyCount++
		}
	}
	if keyCount != 1 {
		t.Fatalf("expected one row for duplicate key got %d", keyCount)
	}
}

func TestNormalize_NumericEmotionNamesRelabeled(t *testing.T) {
	payload := prosodyPayload(map[string][]map[string]any{
		"A": {span(0, 10, "", "emotions", "42", 0.8, "Joy", 0.2)},
	})

	table, err := NewNormalizer().Normalize(payload)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if table.Segments[0].Emotions[0].Name != "Emotion_42" {
		t.Fatalf("numeric name not relabeled: %s", table.Segments[0].Emotions[0].Name)
	}
}

func TestBuildTable_LastMatchingSlotWins(t *testing.T) {
	// The same name in two slots: the higher slot index overwrites the
	// earlier fill, so the lower score lands in the table.
	table := &entities.SegmentTable{
		ConversationLength: 10,
		Segments: []entities.Segment{
			{SpeakerID: "A", StartTime: 0, EndTime: 10,
				Emotions: []entities.EmotionScore{
					{Name: "Joy", Score: 0.9},
					{Name: "Joy", Score: 0.3},
				}},
		},
	}

	flat := BuildTable(table, []string{"Joy"})
	if flat.Rows[0].Scores[0] != 0.3 {
		t.Fatalf("expected last slot to win with 0.3 got %v", flat.Rows[0].Scores[0])
	}
}

func TestAnalyze_FailureStates(t *testing.T) {
	engine := NewEngine(nil)

	if _, err := engine.Analyze([]byte("not json at all")); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload got %v", err)
	}

	empty, _ := json.Marshal([]map[string]any{{"source": map[string]any{}, "results": map[string]any{}}})
	if _, err := engine.Analyze(empty); !errors.Is(err, ErrNoSegments) {
		t.Fatalf("expected ErrNoSegments got %v", err)
	}
}

func TestNormalize_MalformedSpansSkipped(t *testing.T) {
	raw := `[{"source":{},"results":{"predictions":[{"models":{"prosody":{"grouped_predictions":[
		{"id":"A","predictions":[
			{"time":{"begin":0,"end":5},"text":"ok","emotions":[{"name":"Joy","score":0.5}]},
			"this is not a span object"
		]}
	]}}}]}}]`

	table, err := NewNormalizer().Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(table.Segments) != 1 {
		t.Fatalf("expected 1 segment got %d", len(table.Segments))
	}
	if table.SkippedSpans != 1 {
		t.Fatalf("expected 1 skipped span got %d", table.SkippedSpans)
	}
}

func TestReport_TopEmotionsSerializeAsPairs(t *testing.T) {
	payload := prosodyPayload(map[string][]map[string]any{
		"A": {span(0, 10, "", "emotions", "Joy", 0.8, "Calm", 0.2)},
	})

	res, err := NewEngine(nil).Analyze(payload)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	b, err := json.Marshal(res.Report)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(b), `"top_emotions":[["Joy",0.8],["Calm",0.2]]`) {
		t.Fatalf("unexpected top_emotions encoding: %s", b)
	}
}

func TestWriteCSV(t *testing.T) {
	payload := prosodyPayload(map[string][]map[string]any{
		"A": {span(0, 10, "hello, world", "emotions", "Joy", 0.8)},
	})

	res, err := NewEngine(nil).Analyze(payload)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	var sb strings.Builder
	if err := WriteCSV(&sb, res.Table); err != nil {
		t.Fatalf("write csv failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header plus one row got %d lines", len(lines))
	}
	if lines[0] != "speaker_id,start_time,end_time,text,quintile,Joy" {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if lines[1] != `A,0,10,"hello, world",2,0.8` {
		t.Fatalf("unexpected row: %s", lines[1])
	}
}

func TestNormalize_BareModelsPayload(t *testing.T) {
	payload, err := json.Marshal(map[string]any{
		"models": map[string]any{
			"prosody": map[string]any{
				"grouped_predictions": []map[string]any{
					{"id": "A", "predictions": []map[string]any{
						span(0, 10, "hello", "emotions", "Joy", 0.8),
					}},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	table, err := NewNormalizer().Normalize(payload)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(table.Segments) != 1 {
		t.Fatalf("expected 1 segment got %d", len(table.Segments))
	}
	seg := table.Segments[0]
	if seg.SpeakerID != "A" || seg.Emotions[0].Name != "Joy" {
		t.Fatalf("unexpected segment %+v", seg)
	}
}

func TestBuildTable_QuintileColumnIsBucketIndex(t *testing.T) {
	payload := prosodyPayload(map[string][]map[string]any{
		"A": {
			span(0, 2, "early", "emotions", "Joy", 0.8),
			span(48, 50, "late", "emotions", "Calm", 0.6),
		},
	})

	res, err := NewEngine(nil).Analyze(payload)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if len(res.Table.Rows) != 2 {
		t.Fatalf("expected 2 rows got %d", len(res.Table.Rows))
	}

	// length 50, quintile size 10: midpoint 1 lands in bucket 0, midpoint 49 in bucket 4
	if got := res.Table.Rows[0].Quintile; got != 0 {
		t.Fatalf("expected bucket 0 in the first row got %d", got)
	}
	if got := res.Table.Rows[1].Quintile; got != 4 {
		t.Fatalf("expected bucket 4 in the last row got %d", got)
	}
}
