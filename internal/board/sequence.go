package board

const (
	// DefaultSequence is used for a state with no neighbours.
	DefaultSequence = 15000.0
	// SequenceGap is the offset from a single neighbour.
	SequenceGap = DefaultSequence / 2
)

// SequenceBetween returns a sequence number that sorts between prev and next.
// A nil neighbour is absent.
func SequenceBetween(prev, next *float64) float64 {
	switch {
	case prev != nil && next != nil:
		return (*prev + *next) / 2
	case next != nil:
		return *next - SequenceGap
	case prev != nil:
		return *prev + SequenceGap
	default:
		return DefaultSequence
	}
}
