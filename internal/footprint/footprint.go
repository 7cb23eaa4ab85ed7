// Package footprint accounts queue occupancy in messages, bytes and pages,
// and plans how much of a candidate batch fits under a page ceiling.
//
// Footprints are never cached: callers tally the current queue contents with
// a Tally each time they need one, so a footprint cannot drift from the data
// it describes.
package footprint

import "fmt"

// Footprint summarises one origin's queue occupancy.
type Footprint struct {
	Count      uint64 `json:"count"`
	Size       uint64 `json:"size"`
	Pages      uint32 `json:"pages"`
	ReadyPages uint32 `json:"readyPages"`
}

// IsZero reports whether the queue is empty.
func (f Footprint) IsZero() bool { return f == Footprint{} }

func (f Footprint) String() string {
	return fmt.Sprintf("count=%d size=%d pages=%d ready_pages=%d", f.Count, f.Size, f.Pages, f.ReadyPages)
}

// BatchFootprint describes the cost of appending the first MsgsCount
// candidates of a batch.
type BatchFootprint struct {
	MsgsCount     int    `json:"msgsCount"`
	SizeInBytes   int    `json:"sizeInBytes"`
	NewPagesCount uint32 `json:"newPagesCount"`
}

// Tally accumulates queue contents, in queue order, into a Footprint.
type Tally struct {
	packer Packer
	fp     Footprint
}

// NewTally starts an empty tally under the given page policy.
func NewTally(policy PagePolicy) *Tally {
	return &Tally{packer: policy.NewPacker()}
}

// Add accounts one message of size bytes.
func (t *Tally) Add(size int) {
	t.fp.Count++
	t.fp.Size += uint64(size)
	t.fp.Pages += t.packer.Add(size)
}

// Footprint returns the accumulated footprint with every page ready.
func (t *Tally) Footprint() Footprint {
	fp := t.fp
	fp.ReadyPages = fp.Pages
	return fp
}

// Packer returns the packer positioned after the tallied messages, so a
// planner can continue accounting from the current queue tail.
func (t *Tally) Packer() Packer { return t.packer }

// Plan walks candidate message sizes in order and returns one BatchFootprint
// per prefix that fits under totalPagesLimit. base is the origin's current
// footprint and packer must be positioned after its stored messages.
//
// The walk stops at the first candidate whose page cost would push
// base.Pages+new above the limit; later candidates are never considered. An
// origin already at or above the limit gets an empty plan.
func Plan(base Footprint, packer Packer, sizes []int, totalPagesLimit uint32) []BatchFootprint {
	if len(sizes) == 0 || base.Pages >= totalPagesLimit {
		return nil
	}
	var (
		out       []BatchFootprint
		newPages  uint32
		totalSize int
	)
	for i, size := range sizes {
		newPages += packer.Add(size)
		if uint64(base.Pages)+uint64(newPages) > uint64(totalPagesLimit) {
			break
		}
		totalSize += size
		out = append(out, BatchFootprint{
			MsgsCount:     i + 1,
			SizeInBytes:   totalSize,
			NewPagesCount: newPages,
		})
	}
	return out
}
