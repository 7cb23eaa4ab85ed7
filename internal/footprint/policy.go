package footprint

import "fmt"

// PagePolicy decides how messages map onto storage pages.
type PagePolicy interface {
	// Name identifies the policy in config and logs.
	Name() string
	// NewPacker returns a packer positioned at an empty queue.
	NewPacker() Packer
}

// Packer accounts messages in queue order.
type Packer interface {
	// Add accounts one message of size bytes and returns the number of new
	// pages it opened.
	Add(size int) uint32
}

// Policy names accepted by ParsePolicy.
const (
	PolicyOnePerPage = "one-per-page"
	PolicyPacked     = "packed"
)

// ParsePolicy builds a policy from its config name. pageSize is only used by
// the packed policy.
func ParsePolicy(name string, pageSize int) (PagePolicy, error) {
	switch name {
	case "", PolicyOnePerPage:
		return OnePerPage{}, nil
	case PolicyPacked:
		if pageSize <= 0 {
			return nil, fmt.Errorf("footprint: packed policy needs a positive page size, got %d", pageSize)
		}
		return Packed{PageSize: pageSize}, nil
	default:
		return nil, fmt.Errorf("footprint: unknown page policy %q", name)
	}
}

// OnePerPage places every message on its own page.
type OnePerPage struct{}

func (OnePerPage) Name() string      { return PolicyOnePerPage }
func (OnePerPage) NewPacker() Packer { return onePerPage{} }

type onePerPage struct{}

func (onePerPage) Add(int) uint32 { return 1 }

// Packed appends messages into fixed-size pages. A message that does not fit
// into the open page opens a new one; a message larger than a page spans
// ceil(size/PageSize) fresh pages and leaves the remainder of its last page
// open for the next message.
type Packed struct {
	PageSize int
}

func (p Packed) Name() string      { return PolicyPacked }
func (p Packed) NewPacker() Packer { return &packed{pageSize: p.PageSize} }

type packed struct {
	pageSize int
	room     int
	open     bool
}

func (p *packed) Add(size int) uint32 {
	if p.open && size <= p.room {
		p.room -= size
		return 0
	}
	p.open = true
	if size <= p.pageSize {
		p.room = p.pageSize - size
		return 1
	}
	n := (size + p.pageSize - 1) / p.pageSize
	p.room = n*p.pageSize - size
	return uint32(n)
}
