package quintile

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/talkscope-team/talkscope/internal/domain/entities"
)

// WriteCSV renders the flat table as CSV: the fixed segment columns followed
// by one score column per vocabulary emotion.
func WriteCSV(w io.Writer, table *entities.FlatTable) error {
	cw := csv.NewWriter(w)

	header := append([]string{"speaker_id", "start_time", "end_time", "text", "quintile"}, table.Vocabulary...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := range table.Rows {
		row := &table.Rows[i]
		record := make([]string, 0, len(header))
		record = append(record,
			row.SpeakerID,
			strconv.FormatFloat(row.StartTime, 'f', -1, 64),
			strconv.FormatFloat(row.EndTime, 'f', -1, 64),
			row.Text,
			strconv.Itoa(row.Quintile),
		)
		for j := range table.Vocabulary {
			record = append(record, strconv.FormatFloat(row.Scores[j], 'f', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
