package quintile

import (
	"errors"

	"go.uber.org/zap"

	"github.com/talkscope-team/talkscope/internal/domain/entities"
)

var (
	// ErrMalformedPayload means the payload could not be decoded as any
	// accepted JSON shape.
	ErrMalformedPayload = errors.New("prediction payload is malformed")
	// ErrNoSegments means the payload decoded but contained no
	// recognizable timed spans.
	ErrNoSegments = errors.New("no segments found in prediction payload")
)

// Result carries every artifact of one analysis run. All fields are freshly
// allocated per call; callers own them outright.
type Result struct {
	Report     *entities.QuintileReport
	Table      *entities.FlatTable
	Vocabulary []string
	Segments   *entities.SegmentTable
}

// Engine runs the full analysis pipeline over one prediction payload:
// normalize, select vocabulary, aggregate by quintile, build report and
// table. It holds no state between calls and is safe for concurrent use.
type Engine struct {
	normalizer *Normalizer
	logger     *zap.Logger
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		normalizer: NewNormalizer(),
		logger:     logger,
	}
}

// Analyze processes a raw JSON prediction payload end to end.
func (e *Engine) Analyze(raw []byte) (*Result, error) {
	table, err := e.normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}

	if table.SkippedSpans > 0 || table.DroppedDuplicates > 0 {
		e.logger.Warn("normalized payload with anomalies",
			zap.Int("skipped_spans", table.SkippedSpans),
			zap.Int("dropped_duplicates", table.DroppedDuplicates))
	}

	vocabulary := SelectVocabulary(table)
	speakers := Aggregate(table)

	e.logger.Info("analysis complete",
		zap.Int("segments", len(table.Segments)),
		zap.Int("speakers", len(speakers)),
		zap.Float64("conversation_length_seconds", table.ConversationLength))

	return &Result{
		Report:     BuildReport(speakers, table.ConversationLength),
		Table:      BuildTable(table, vocabulary),
		Vocabulary: vocabulary,
		Segments:   table,
	}, nil
}
