package quintile

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/talkscope-team/talkscope/internal/domain/entities"
)

// The vendor returns predictions either as a list of {source, results}
// wrappers or as a single wrapper object. Each prediction carries per-model
// channels; the prosody channel ranks emotions per span, the language channel
// ranks sentiment values with the same grouping. Only the levels that must
// survive partial decoding use RawMessage, so one bad span never sinks the
// whole payload.

type rawWrapper struct {
	Source  json.RawMessage `json:"source"`
	Results rawResults      `json:"results"`
}

type rawResults struct {
	Predictions []rawPrediction `json:"predictions"`
}

type rawPrediction struct {
	Models rawModels `json:"models"`
}

type rawModels struct {
	Prosody  *rawChannel `json:"prosody"`
	Language *rawChannel `json:"language"`
}

type rawChannel struct {
	GroupedPredictions []rawGroup `json:"grouped_predictions"`
}

type rawGroup struct {
	ID          string            `json:"id"`
	Predictions []json.RawMessage `json:"predictions"`
}

type rawSpan struct {
	Time      rawTime           `json:"time"`
	Text      string            `json:"text"`
	Emotions  []json.RawMessage `json:"emotions"`
	Sentiment []json.RawMessage `json:"sentiment"`
}

type rawTime struct {
	Begin float64 `json:"begin"`
	End   float64 `json:"end"`
}

type rawScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// channelKind tags which recognized payload variant a span came from.
type channelKind int

const (
	channelProsody channelKind = iota
	channelLanguage
)

type segmentKey struct {
	speaker string
	start   float64
	end     float64
}

// Normalizer flattens a raw vendor payload into a canonical SegmentTable.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize decodes the raw payload and extracts every recognizable timed
// span into a Segment. Unparsable spans are skipped and counted. Returns
// ErrMalformedPayload when the payload is not valid JSON in any accepted
// shape, and ErrNoSegments when it decodes but yields zero segments.
func (n *Normalizer) Normalize(raw []byte) (*entities.SegmentTable, error) {
	wrappers, err := decodeWrappers(raw)
	if err != nil {
		return nil, err
	}

	table := &entities.SegmentTable{}
	seen := make(map[segmentKey]struct{})

	for _, w := range wrappers {
		for _, pred := range w.Results.Predictions {
			// The prosody channel is registered first. Language spans
			// sharing an exact (speaker, start, end) key with anything
			// already collected are dropped, first seen wins.
			if pred.Models.Prosody != nil {
				n.collectChannel(table, seen, pred.Models.Prosody, channelProsody)
			}
			if pred.Models.Language != nil {
				n.collectChannel(table, seen, pred.Models.Language, channelLanguage)
			}
		}
	}

	if len(table.Segments) == 0 {
		return nil, ErrNoSegments
	}

	sort.SliceStable(table.Segments, func(i, j int) bool {
		return table.Segments[i].StartTime < table.Segments[j].StartTime
	})

	for i := range table.Segments {
		if table.Segments[i].EndTime > table.ConversationLength {
			table.ConversationLength = table.Segments[i].EndTime
		}
	}
	for i := range table.Segments {
		table.Segments[i].Quintile = bucketFor(&table.Segments[i], table.ConversationLength)
	}

	return table, nil
}

func (n *Normalizer) collectChannel(table *entities.SegmentTable, seen map[segmentKey]struct{}, ch *rawChannel, kind channelKind) {
	for _, group := range ch.GroupedPredictions {
		speaker := group.ID
		if speaker == "" {
			speaker = "unknown"
		}

		for _, rawSpanData := range group.Predictions {
			var span rawSpan
			if err := json.Unmarshal(rawSpanData, &span); err != nil {
				table.SkippedSpans++
				continue
			}

			key := segmentKey{speaker: speaker, start: span.Time.Begin, end: span.Time.End}
			if kind == channelLanguage {
				if _, dup := seen[key]; dup {
					table.DroppedDuplicates++
					continue
				}
			}
			seen[key] = struct{}{}

			scores := span.Emotions
			if kind == channelLanguage {
				scores = span.Sentiment
			}

			table.Segments = append(table.Segments, entities.Segment{
				SpeakerID: speaker,
				StartTime: span.Time.Begin,
				EndTime:   span.Time.End,
				Text:      span.Text,
				Emotions:  n.rankedEmotions(scores, table),
			})
		}
	}
}

// rankedEmotions decodes the raw score entries, sorts them descending by
// score and keeps the top slots. Purely numeric names are relabeled with an
// Emotion_ prefix so they cannot collide with structural column names
// downstream.
func (n *Normalizer) rankedEmotions(raw []json.RawMessage, table *entities.SegmentTable) []entities.EmotionScore {
	if len(raw) == 0 {
		return nil
	}

	scores := make([]entities.EmotionScore, 0, len(raw))
	for _, entry := range raw {
		var s rawScore
		if err := json.Unmarshal(entry, &s); err != nil {
			table.SkippedSpans++
			continue
		}
		if s.Name == "" {
			s.Name = "Unknown"
		}
		if isNumericName(s.Name) {
			s.Name = "Emotion_" + s.Name
		}
		scores = append(scores, entities.EmotionScore{Name: s.Name, Score: s.Score})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})

	if len(scores) > entities.MaxEmotionSlots {
		scores = scores[:entities.MaxEmotionSlots]
	}
	return scores
}

func isNumericName(name string) bool {
	if _, err := strconv.Atoi(name); err == nil {
		return true
	}
	return false
}

// bucketFor assigns a segment to one of the five equal-length time windows
// using the segment midpoint. A midpoint landing exactly on the conversation
// end clamps to the last bucket.
func bucketFor(s *entities.Segment, conversationLength float64) int {
	if conversationLength == 0 {
		return 0
	}
	quintileSize := conversationLength / entities.NumQuintiles
	bucket := int(s.Midpoint() / quintileSize)
	if bucket >= entities.NumQuintiles {
		bucket = entities.NumQuintiles - 1
	}
	return bucket
}

// decodeWrappers accepts every recognized payload shape: a JSON array of
// wrapper objects, a single wrapper object, or a bare mapping carrying the
// per-model prediction groups at top level.
func decodeWrappers(raw []byte) ([]rawWrapper, error) {
	var list []rawWrapper
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var single struct {
		Source  json.RawMessage `json:"source"`
		Results rawResults      `json:"results"`
		Models  *rawModels      `json:"models"`
	}
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, ErrMalformedPayload
	}
	if len(single.Results.Predictions) == 0 && single.Models != nil {
		return []rawWrapper{{
			Source:  single.Source,
			Results: rawResults{Predictions: []rawPrediction{{Models: *single.Models}}},
		}}, nil
	}
	return []rawWrapper{{Source: single.Source, Results: single.Results}}, nil
}
