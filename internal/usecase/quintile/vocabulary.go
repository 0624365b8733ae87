package quintile

import (
	"sort"

	"github.com/talkscope-team/talkscope/internal/domain/entities"
)

// SelectVocabulary picks the globally most frequent emotion names across the
// whole table, up to MaxEmotionSlots entries. Frequency is occurrence count
// over occupied slots, not score weighted; a name filling two slots of the
// same segment counts twice. Equal counts break ties lexicographically so
// the selection is deterministic.
func SelectVocabulary(table *entities.SegmentTable) []string {
	counts := make(map[string]int)
	for i := range table.Segments {
		for _, e := range table.Segments[i].Emotions {
			counts[e.Name]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	if len(names) > entities.MaxEmotionSlots {
		names = names[:entities.MaxEmotionSlots]
	}
	return names
}
