// Package cfgraph builds the control-flow graph spec.md §4.6 describes: a
// method's bytecode split into basic blocks, linked by predecessor edges,
// with nested block literals parsed recursively into their own graphs.
// Grounded on the source's ParsedBytecode::parse / ParsedBlock::parseBlock,
// which walk the bytecode twice — once to discover every block-start offset
// and nested literal range, once to actually lay instructions into blocks
// and wire up the edges between them.
package cfgraph

import (
	"fmt"

	"golang.org/x/tools/container/intsets"

	"stvm/internal/bytecode"
)

// BasicBlock is a maximal straight-line run of instructions: control enters
// only at Start and leaves only through the last instruction, which is a
// terminator (spec.md §8 "CFG well-formedness") except in the final block of
// a bytecode range that ends without one.
type BasicBlock struct {
	ID           int
	Start        int
	End          int
	Instructions []bytecode.PositionedInstruction
	Predecessors intsets.Sparse

	// Synthetic marks a block whose terminator is a branch this builder
	// inserted (fall-through made explicit), rather than one present in the
	// original bytecode.
	Synthetic bool
}

// Terminator returns the block's last instruction, which by construction is
// always present and is a terminator unless the block ends the bytecode
// range without one.
func (b *BasicBlock) Terminator() bytecode.Instruction {
	return b.Instructions[len(b.Instructions)-1].Instruction
}

// Graph is one method's (or one block literal's) control-flow graph. Blocks
// are indexed by ID, assigned in the order this builder first creates them,
// matching the source's own createBasicBlock-on-first-reference order.
type Graph struct {
	Blocks []*BasicBlock
	Entry  *BasicBlock

	// Nested holds one Graph per pushBlock literal found in this range,
	// recursively parsed (spec.md §4.6 "recursively parses nested block
	// literals"), in the order their pushBlock instructions appear.
	Nested []*Graph
}

// Parse builds the control-flow graph of a method's full bytecode.
func Parse(code []byte) (*Graph, error) {
	return buildRange(code, 0, len(code))
}

// builder holds the state shared by both passes over a single [start, stop)
// range; nested ranges get their own builder via buildRange's recursion.
type builder struct {
	code          []byte
	start, stop   int
	blocks        []*BasicBlock
	offsetToBlock map[int]*BasicBlock
	nestedRanges  [][2]int
}

func buildRange(code []byte, start, stop int) (*Graph, error) {
	b := &builder{
		code:          code,
		start:         start,
		stop:          stop,
		offsetToBlock: make(map[int]*BasicBlock),
	}

	if err := b.discoverBlockStarts(); err != nil {
		return nil, err
	}
	if err := b.layInstructions(); err != nil {
		return nil, err
	}

	g := &Graph{Blocks: b.blocks, Entry: b.offsetToBlock[start]}
	for _, r := range b.nestedRanges {
		nested, err := buildRange(code, r[0], r[1])
		if err != nil {
			return nil, err
		}
		g.Nested = append(g.Nested, nested)
	}
	return g, nil
}

// blockAt returns the block starting at offset, creating it (with the next
// unused ID) on first reference.
func (b *builder) blockAt(offset int) *BasicBlock {
	if blk, ok := b.offsetToBlock[offset]; ok {
		return blk
	}
	blk := &BasicBlock{ID: len(b.blocks), Start: offset}
	b.blocks = append(b.blocks, blk)
	b.offsetToBlock[offset] = blk
	return blk
}

// discoverBlockStarts is the first pass: find every offset a block must
// start at (every branch target, plus the fall-through address right after
// a conditional branch, since that address is a second successor distinct
// from the taken target) and every nested pushBlock range, without yet
// assigning any instruction to a block. The entry offset always gets a
// block too, even if nothing branches to it.
func (b *builder) discoverBlockStarts() error {
	b.blockAt(b.start)

	d := bytecode.NewDecoder(b.code)
	d.SetPos(b.start)
	for d.Pos() < b.stop {
		ins, err := b.decodeOne(d)
		if err != nil {
			return err
		}
		switch {
		case ins.Opcode == bytecode.OpPushBlock:
			bodyStart := d.Pos()
			bodyStop := int(ins.Extra)
			b.nestedRanges = append(b.nestedRanges, [2]int{bodyStart, bodyStop})
			d.SetPos(bodyStop)
		case ins.IsBranch():
			b.blockAt(int(ins.Extra))
			if isConditionalBranch(ins) {
				b.blockAt(d.Pos())
			}
		}
	}
	return nil
}

// layInstructions is the second pass: walk the range again, appending each
// instruction to the current block, switching blocks whenever the walk
// reaches an offset discoverBlockStarts registered, and wiring predecessor
// edges as each branch (real or synthesized) is laid down.
func (b *builder) layInstructions() error {
	d := bytecode.NewDecoder(b.code)
	d.SetPos(b.start)

	current := b.blockAt(b.start)

	for d.Pos() < b.stop {
		pos := d.Pos()
		if pos != current.Start {
			if next, ok := b.offsetToBlock[pos]; ok {
				current = b.closeFallthrough(current, next, pos)
			}
		}

		ins, err := b.decodeOne(d)
		if err != nil {
			return err
		}
		current.Instructions = append(current.Instructions, bytecode.PositionedInstruction{
			Pos: pos, End: d.Pos(), Instruction: ins,
		})
		current.End = d.Pos()

		if ins.Opcode == bytecode.OpPushBlock {
			d.SetPos(int(ins.Extra))
			continue
		}
		if ins.IsBranch() {
			target := b.blockAt(int(ins.Extra))
			target.Predecessors.Insert(current.ID)
			if isConditionalBranch(ins) {
				fall := b.blockAt(d.Pos())
				fall.Predecessors.Insert(current.ID)
			}
		}
	}
	return nil
}

// closeFallthrough is called when the linear walk reaches an offset that
// starts another block while the current block is still open. If current
// already ended in a terminator (its last instruction is a branch or
// return), that terminator already recorded whatever successor edges are
// real, and reaching this offset next is either dead code or an edge
// already accounted for — no synthesis needed. Otherwise control genuinely
// falls off the end of current into next, so an explicit unconditional
// branch is appended and the edge recorded, per spec.md §4.6 "Fall-through
// after a branch-less block is made explicit."
func (b *builder) closeFallthrough(current, next *BasicBlock, pos int) *BasicBlock {
	if len(current.Instructions) == 0 || !current.Terminator().IsTerminator() {
		current.Instructions = append(current.Instructions, bytecode.PositionedInstruction{
			Pos: pos, End: pos,
			Instruction: bytecode.Instruction{
				Opcode:   bytecode.OpDoSpecial,
				Argument: uint8(bytecode.SpecialBranch),
				Extra:    uint16(pos),
			},
		})
		current.Synthetic = true
		next.Predecessors.Insert(current.ID)
	}
	return next
}

func isConditionalBranch(ins bytecode.Instruction) bool {
	return bytecode.Opcode(ins.Argument) == bytecode.SpecialBranchIfTrue ||
		bytecode.Opcode(ins.Argument) == bytecode.SpecialBranchIfFalse
}

// decodeOne wraps Decoder.Next, turning its panic-on-truncation into an
// error (cfgraph runs ahead of any Context, so there is no step() boundary
// to recover at for it — it must guard its own decode calls).
func (b *builder) decodeOne(d *bytecode.Decoder) (ins bytecode.Instruction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cfgraph: malformed bytecode at offset %d: %v", d.Pos(), r)
		}
	}()
	ins = d.Next()
	return ins, nil
}
