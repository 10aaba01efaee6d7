package layer

import "fmt"

// PositionKind selects how a Position resolves.
type PositionKind int

const (
	PositionTop PositionKind = iota
	PositionBottom
	PositionIndex
	PositionAbove
	PositionBelow
)

// Position requests where an entry goes in the ordered sequence. Index 0 is
// the bottom of the stack.
type Position struct {
	Kind   PositionKind
	Index  int
	Target string
}

// Top places the entry last (drawn above everything else).
func Top() Position { return Position{Kind: PositionTop} }

// Bottom places the entry first.
func Bottom() Position { return Position{Kind: PositionBottom} }

// Index places the entry at n, clamped to the sequence bounds.
func Index(n int) Position { return Position{Kind: PositionIndex, Index: n} }

// Above places the entry directly above id, or on top if id is unknown.
func Above(id string) Position { return Position{Kind: PositionAbove, Target: id} }

// Below places the entry directly below id, or at the bottom if id is unknown.
func Below(id string) Position { return Position{Kind: PositionBelow, Target: id} }

func (p Position) String() string {
	switch p.Kind {
	case PositionTop:
		return "top"
	case PositionBottom:
		return "bottom"
	case PositionIndex:
		return fmt.Sprintf("index:%d", p.Index)
	case PositionAbove:
		return "above:" + p.Target
	case PositionBelow:
		return "below:" + p.Target
	default:
		return "unknown"
	}
}

// resolve returns the insertion index for p in a sequence of length n.
// indexOf looks up other entries by id.
func (p Position) resolve(n int, indexOf func(string) int) int {
	switch p.Kind {
	case PositionBottom:
		return 0
	case PositionIndex:
		return max(0, min(p.Index, n))
	case PositionAbove:
		if i := indexOf(p.Target); i >= 0 {
			return i + 1
		}
		return n
	case PositionBelow:
		if i := indexOf(p.Target); i >= 0 {
			return i
		}
		return 0
	default:
		return n
	}
}
