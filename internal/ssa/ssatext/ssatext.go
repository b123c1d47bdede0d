// Package ssatext formats and parses ssa.Builder functions as line-based
// text, for golden-file tests of the mid-end passes. The grammar matches
// exactly what ssa.Builder.Format produces, the same pairing the
// original banjo-test-util SSAParser/line_based_reader combination gave
// its C++ test suite.
package ssatext

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/banjoc/banjoc/internal/ssa"
)

// Format returns b's debug text. This is a thin convenience wrapper so
// callers that already import ssatext for Parse don't also need to
// import ssa just to call Format.
func Format(b ssa.Builder) string {
	return b.Format()
}

// Func is the parsed form of one textual function: its blocks in
// declaration order, each as a label plus raw instruction lines. Parse
// does not build an ssa.Builder from them; tests that only want to assert
// on structure (block count, opcodes present) can also walk Func
// directly without round-tripping through a Builder.
type Func struct {
	Blocks []Block
}

// Block is one textual basic block: its header line's block index,
// parameter types, and the raw instruction lines inside it.
type Block struct {
	Index  int
	Params []string // textual type tokens, e.g. "i32"
	Lines  []string // instruction lines, leading tab already stripped
}

// Parse reads the text produced by Format (or hand-written text in the
// same grammar) into a Func. It does not reconstruct an ssa.Builder:
// the instruction operand grammar is lossy for branch-target argument
// lists once block-parameter renumbering has happened, so round-tripping
// through Parse+Builder reconstruction is intentionally not supported;
// Parse exists for tests that assert on the textual shape of a function
// (block count, per-block opcode sequence) rather than reconstructing a
// fully live Builder.
func Parse(text string) (*Func, error) {
	sc := bufio.NewScanner(strings.NewReader(text))
	var fn Func
	var cur *Block

	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "signatures:") {
			continue
		}
		if !strings.HasPrefix(line, "\t") {
			blk, err := parseBlockHeader(line)
			if err != nil {
				return nil, err
			}
			fn.Blocks = append(fn.Blocks, blk)
			cur = &fn.Blocks[len(fn.Blocks)-1]
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(line), "sig") {
			continue // a "signatures:" table entry, not an instruction.
		}
		if cur == nil {
			return nil, fmt.Errorf("ssatext: instruction line before any block header: %q", line)
		}
		cur.Lines = append(cur.Lines, strings.TrimPrefix(line, "\t"))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &fn, nil
}

// parseBlockHeader parses "blkN: (p0:t0,p1:t1) <-- (blkX,blkY)" into a
// Block, ignoring the predecessor list (Parse does not reconstruct CFG
// edges; see the Parse doc comment).
func parseBlockHeader(line string) (Block, error) {
	line = strings.TrimSpace(line)
	name, rest, ok := strings.Cut(line, ":")
	if !ok {
		return Block{}, fmt.Errorf("ssatext: malformed block header: %q", line)
	}
	name = strings.TrimSpace(name)
	if !strings.HasPrefix(name, "blk") {
		return Block{}, fmt.Errorf("ssatext: expected blkN header, got %q", name)
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(name, "blk"))
	if err != nil {
		return Block{}, fmt.Errorf("ssatext: bad block index in %q: %w", name, err)
	}

	rest = strings.TrimSpace(rest)
	if i := strings.Index(rest, "<--"); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")
	rest = strings.TrimSpace(rest)

	var params []string
	if rest != "" {
		for _, p := range strings.Split(rest, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, t, ok := strings.Cut(p, ":"); ok {
				params = append(params, strings.TrimSpace(t))
			} else {
				params = append(params, p)
			}
		}
	}

	return Block{Index: idx, Params: params}, nil
}

// Opcodes returns the opcode mnemonic of every instruction line in blk,
// in order, by taking the token after "= " (or the first token, for
// void instructions) up to the next space.
func (blk Block) Opcodes() []string {
	out := make([]string, 0, len(blk.Lines))
	for _, line := range blk.Lines {
		s := line
		if i := strings.Index(s, "= "); i >= 0 {
			s = s[i+2:]
		}
		s = strings.TrimSpace(s)
		if i := strings.IndexByte(s, ' '); i >= 0 {
			s = s[:i]
		}
		out = append(out, s)
	}
	return out
}
