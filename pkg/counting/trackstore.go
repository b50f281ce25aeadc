package counting

import "github.com/cyclopcam/linecount/pkg/nn"

// TrackRecord is everything we remember about one track identity
type TrackRecord struct {
	Class    nn.VehicleClass
	HasClass bool // False until the track has been associated with a detection
	Side     Side
	HasSide  bool // False until the track has been seen while a line was configured
	Counted  bool // Once true, this track can never be counted again (until a clear)
}

// TrackStore maps track IDs to their records.
// Records are never evicted individually. A track that the tracker has forgotten
// can't cross the line again, so its record is harmless until the next Clear.
type TrackStore struct {
	records map[int64]*TrackRecord
}

func NewTrackStore() *TrackStore {
	return &TrackStore{
		records: map[int64]*TrackRecord{},
	}
}

// GetOrCreate returns the record of the given track, creating an empty one on first sight
func (s *TrackStore) GetOrCreate(id int64) *TrackRecord {
	r := s.records[id]
	if r == nil {
		r = &TrackRecord{}
		s.records[id] = r
	}
	return r
}

// Get returns nil if the track has never been seen
func (s *TrackStore) Get(id int64) *TrackRecord {
	return s.records[id]
}

func (s *TrackStore) Len() int {
	return len(s.records)
}

func (s *TrackStore) Clear() {
	s.records = map[int64]*TrackRecord{}
}
