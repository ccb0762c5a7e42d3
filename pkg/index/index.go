package index

// RecordIndex maps destination records by their own id and by the source
// task id recovered from their back-reference marker. It is built once per
// pass from the fetched records and thrown away afterwards.
type RecordIndex[R any] struct {
	byID      map[string]*R
	bySource  map[string]*R
	id        func(*R) string
	sourceRef func(*R) string
}

// New indexes records. id returns a record's destination id; sourceRef
// returns the source task id embedded in the record, or "" when it has none.
// When two records claim the same source task, the first one wins.
func New[R any](records []R, id func(*R) string, sourceRef func(*R) string) *RecordIndex[R] {
	idx := &RecordIndex[R]{
		byID:      make(map[string]*R, len(records)),
		bySource:  make(map[string]*R),
		id:        id,
		sourceRef: sourceRef,
	}
	for i := range records {
		idx.put(&records[i])
	}
	return idx
}

// Add indexes a record fetched after New, e.g. by a targeted lookup. An
// already indexed id is replaced; a source already claimed keeps its record.
func (idx *RecordIndex[R]) Add(rec R) *R {
	r := &rec
	idx.put(r)
	return idx.byID[idx.id(r)]
}

func (idx *RecordIndex[R]) put(rec *R) {
	idx.byID[idx.id(rec)] = rec
	if ref := idx.sourceRef(rec); ref != "" {
		if _, exists := idx.bySource[ref]; !exists {
			idx.bySource[ref] = rec
		}
	}
}

// Get returns the record with the given destination id, or nil.
func (idx *RecordIndex[R]) Get(id string) *R {
	return idx.byID[id]
}

// BySource returns the record whose marker names sourceID, or nil.
func (idx *RecordIndex[R]) BySource(sourceID string) *R {
	return idx.bySource[sourceID]
}

// Len is the number of indexed records.
func (idx *RecordIndex[R]) Len() int {
	return len(idx.byID)
}

// Linked is the number of records carrying a marker.
func (idx *RecordIndex[R]) Linked() int {
	return len(idx.bySource)
}
