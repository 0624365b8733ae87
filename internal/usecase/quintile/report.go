package quintile

import (
	"github.com/talkscope-team/talkscope/internal/domain/entities"
)

// BuildReport wraps the aggregator output with the conversation length.
func BuildReport(speakers map[string]entities.SpeakerQuintiles, conversationLength float64) *entities.QuintileReport {
	return &entities.QuintileReport{
		ConversationLength: conversationLength,
		Speakers:           speakers,
	}
}

// BuildTable flattens the table to one row per segment with one score column
// per vocabulary emotion. Slots are scanned in ascending order with
// overwrite, so when a name fills several slots of the same segment the
// highest slot index wins. Downstream charting depends on this exact fill
// order, so it must not be changed to a max over slots.
func BuildTable(table *entities.SegmentTable, vocabulary []string) *entities.FlatTable {
	slot := make(map[string]int, len(vocabulary))
	for i, name := range vocabulary {
		slot[name] = i
	}

	flat := &entities.FlatTable{
		Vocabulary: vocabulary,
		Rows:       make([]entities.TableRow, 0, len(table.Segments)),
	}

	for i := range table.Segments {
		seg := &table.Segments[i]
		row := entities.TableRow{
			SpeakerID: seg.SpeakerID,
			StartTime: seg.StartTime,
			EndTime:   seg.EndTime,
			Quintile:  seg.Quintile,
			Text:      seg.Text,
		}
		for _, e := range seg.Emotions {
			if idx, ok := slot[e.Name]; ok {
				row.Names[idx] = e.Name
				row.Scores[idx] = e.Score
			}
		}
		flat.Rows = append(flat.Rows, row)
	}

	return flat
}
