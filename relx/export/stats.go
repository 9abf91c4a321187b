package export

import (
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/ZanzyTHEbar/relx/relx/guard"
	"github.com/ZanzyTHEbar/relx/relx/resolver"
)

// TableStats counts what one table export did. Recoverable conditions end up
// here instead of failing the run.
type TableStats struct {
	Records        int64                         `json:"records"`
	Objects        int64                         `json:"objects,omitempty"`
	FailedObjects  int64                         `json:"failedObjects,omitempty"`
	AbortedObjects int64                         `json:"abortedObjects,omitempty"`
	Duplicates     int64                         `json:"duplicates,omitempty"`
	Diagnostics    int64                         `json:"diagnostics,omitempty"`
	Skipped        map[resolver.SkipReason]int64 `json:"skipped,omitempty"`
	ByStatus       map[resolver.Status]int64     `json:"byStatus,omitempty"`
	Aborts         map[guard.AbortReason]int64   `json:"aborts,omitempty"`
	// Owners is the number of distinct assets that produced at least one record.
	Owners   uint64        `json:"owners,omitempty"`
	Duration time.Duration `json:"durationNs"`

	owners map[string]*roaring64.Bitmap
}

func newTableStats() *TableStats {
	return &TableStats{
		Skipped:  make(map[resolver.SkipReason]int64),
		ByStatus: make(map[resolver.Status]int64),
		Aborts:   make(map[guard.AbortReason]int64),
		owners:   make(map[string]*roaring64.Bitmap),
	}
}

// markOwner records that the asset (collectionID, pathID) emitted a record.
func (s *TableStats) markOwner(collectionID string, pathID int64) {
	bm, ok := s.owners[collectionID]
	if !ok {
		bm = roaring64.New()
		s.owners[collectionID] = bm
	}
	bm.Add(uint64(pathID))
}

// OwnerBitmap returns the emitting path ids of one collection, or nil.
func (s *TableStats) OwnerBitmap(collectionID string) *roaring64.Bitmap {
	return s.owners[collectionID]
}

// SkippedTotal sums the skipped edges over every reason.
func (s *TableStats) SkippedTotal() int64 {
	var n int64
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

func (s *TableStats) addObject(r objectResult) {
	s.Objects++
	s.Records += r.emitted
	s.Duplicates += r.duplicates
	s.Diagnostics += int64(r.diagnostics)
	for reason, n := range r.skipped {
		s.Skipped[reason] += n
	}
	for status, n := range r.byStatus {
		s.ByStatus[status] += n
	}
	if r.aborted != guard.NotAborted {
		s.AbortedObjects++
		s.Aborts[r.aborted]++
	}
	if r.err != nil {
		s.FailedObjects++
	}
}

func (s *TableStats) finish(elapsed time.Duration) {
	s.Duration = elapsed
	s.Owners = 0
	for _, bm := range s.owners {
		s.Owners += bm.GetCardinality()
	}
}
