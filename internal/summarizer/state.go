package summarizer

// State is a step of a single run. Runs only ever move forward.
type State int

const (
	StateIdle State = iota
	StateChunking
	StateMappingChunk
	StateReducePending
	StateReducing
	StateDone
	StateAllChunksFailed
	StateReduceFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChunking:
		return "chunking"
	case StateMappingChunk:
		return "mapping_chunk"
	case StateReducePending:
		return "reduce_pending"
	case StateReducing:
		return "reducing"
	case StateDone:
		return "done"
	case StateAllChunksFailed:
		return "all_chunks_failed"
	case StateReduceFailed:
		return "reduce_failed"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s >= StateDone
}

// StateFunc observes transitions. chunkIndex is the chunk being mapped for
// StateMappingChunk and -1 otherwise.
type StateFunc func(state State, chunkIndex int)
