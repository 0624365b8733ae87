package quintile

import (
	"fmt"
	"sort"

	"github.com/talkscope-team/talkscope/internal/domain/entities"
)

// Aggregate computes the duration-weighted emotional profile of every
// (speaker, bucket) group that contains at least one segment. Buckets where a
// speaker never spoke are absent from that speaker's map. The computation is
// a pure single pass per group with no shared state across calls.
func Aggregate(table *entities.SegmentTable) map[string]entities.SpeakerQuintiles {
	type groupKey struct {
		speaker string
		bucket  int
	}
	groups := make(map[groupKey][]*entities.Segment)
	for i := range table.Segments {
		seg := &table.Segments[i]
		key := groupKey{speaker: seg.SpeakerID, bucket: seg.Quintile}
		groups[key] = append(groups[key], seg)
	}

	quintileSize := table.ConversationLength / entities.NumQuintiles
	result := make(map[string]entities.SpeakerQuintiles)

	for _, speaker := range table.Speakers() {
		speakerQuintiles := make(entities.SpeakerQuintiles)

		for bucket := 0; bucket < entities.NumQuintiles; bucket++ {
			segs := groups[groupKey{speaker: speaker, bucket: bucket}]
			if len(segs) == 0 {
				continue
			}

			var totalDuration float64
			for _, seg := range segs {
				totalDuration += seg.Duration()
			}

			weighted := make(map[string]float64)
			if totalDuration > 0 {
				for _, seg := range segs {
					weight := seg.Duration() / totalDuration
					for _, e := range seg.Emotions {
						weighted[e.Name] += e.Score * weight
					}
				}
			}
			// A group made entirely of zero-duration segments has no
			// meaningful weighting and produces no record.
			if len(weighted) == 0 {
				continue
			}

			top := rankWeighted(weighted)
			record := entities.QuintileRecord{
				TimeRange: fmt.Sprintf("%.2f-%.2fs",
					float64(bucket)*quintileSize, float64(bucket+1)*quintileSize),
				DominantEmotion: top[0].Name,
				EmotionScore:    top[0].Score,
			}
			if len(top) > 5 {
				top = top[:5]
			}
			record.TopEmotions = top

			speakerQuintiles[entities.QuintileKey(bucket)] = record
		}

		result[speaker] = speakerQuintiles
	}

	return result
}

// rankWeighted orders a weighted-emotion map descending by score, ties
// broken by name ascending.
func rankWeighted(weighted map[string]float64) []entities.EmotionWeight {
	ranked := make([]entities.EmotionWeight, 0, len(weighted))
	for name, score := range weighted {
		ranked = append(ranked, entities.EmotionWeight{Name: name, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Name < ranked[j].Name
	})
	return ranked
}
