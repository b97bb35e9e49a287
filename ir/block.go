package ir

import "fmt"

// BasicBlock is a maximal straight-line instruction sequence: phis, then
// inner instructions, then an optional terminator. Successors are
// determined exclusively by Terminator; nothing else may imply control
// flow out of a block.
type BasicBlock struct {
	Phis        []*Phi
	Inner       []Inner
	Terminator  Terminator
}

// NewBasicBlock returns an empty block.
func NewBasicBlock() *BasicBlock {
	return &BasicBlock{}
}

// AddInner appends a straight-line instruction after any existing inner
// instructions. It is a programmer error to call this once a terminator has
// been set; that invariant is enforced by callers (lualift, lift), not
// here.
func (b *BasicBlock) AddInner(i Inner) {
	b.Inner = append(b.Inner, i)
}

// AddPhi appends a phi to the block's phi-prefix.
func (b *BasicBlock) AddPhi(p *Phi) {
	b.Phis = append(b.Phis, p)
}

// SetTerminator sets (or replaces) the block's terminator.
func (b *BasicBlock) SetTerminator(t Terminator) {
	b.Terminator = t
}

// PhiByDest returns the phi in this block writing dest, if any.
func (b *BasicBlock) PhiByDest(dest ValueId) (*Phi, int) {
	for idx, p := range b.Phis {
		if p.Dest == dest {
			return p, idx
		}
	}
	return nil, -1
}

// RemovePhiAt removes the phi at idx, preserving the relative order of the
// remaining phis.
func (b *BasicBlock) RemovePhiAt(idx int) {
	b.Phis = append(b.Phis[:idx], b.Phis[idx+1:]...)
}

func (b *BasicBlock) String() string {
	return fmt.Sprintf("block{%d phis, %d inner, terminator=%v}", len(b.Phis), len(b.Inner), b.Terminator != nil)
}
