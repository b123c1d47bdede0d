package analyzer

import (
	"github.com/banjoc/banjoc/internal/sir"
)

// constPoolPageSize is spec's "growable arena (block size 8)" for interned
// const-eval results, distinct from sir.Arena's page-128 sizing: const
// results are far fewer than SIR nodes (only enum variants, array
// lengths, and other const-evaluated expressions intern here).
const constPoolPageSize = 8

// ConstKind tags the sum-typed result of the const evaluator.
type ConstKind int

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstBool
	ConstTuple
	ConstArray
)

// ConstValue is one interned const-evaluation result. Tuple/Array results
// reference their element ConstValues via constHandle, so ConstValue
// itself stays small and copyable.
type ConstValue struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Bool  bool
	Elems []constHandle
	Typ   sir.Type
}

type constHandle uint32

// constArena interns ConstValues in page-8 blocks, grounded on the
// teacher's pool[T] slab allocator.
type constArena struct {
	pages [][constPoolPageSize]ConstValue
	n     int
}

func (p *constArena) intern(v ConstValue) constHandle {
	idx := p.n
	page, off := idx/constPoolPageSize, idx%constPoolPageSize
	for len(p.pages) <= page {
		p.pages = append(p.pages, [constPoolPageSize]ConstValue{})
	}
	p.pages[page][off] = v
	p.n++
	return constHandle(idx)
}

func (p *constArena) get(h constHandle) *ConstValue {
	page, off := int(h)/constPoolPageSize, int(h)%constPoolPageSize
	return &p.pages[page][off]
}

// evalConst is a pure interpreter over the const-evaluable Expr subset:
// literals, symbol references to consts/enum-variants, binary/unary ops,
// tuples, array literals, constant-index indexing, and meta-field/
// meta-call. It never mutates the Unit; ok is false if h isn't
// const-evaluable, in which case a diagnostic has already been reported.
func (a *Analyzer) evalConst(h sir.Handle) (ConstValue, bool) {
	e := a.unit.Expr(h)
	switch e.Kind {
	case sir.ExprIntLiteral:
		return ConstValue{Kind: ConstInt, Int: e.IntVal, Typ: e.Type}, true
	case sir.ExprFPLiteral:
		return ConstValue{Kind: ConstFloat, Float: e.FloatVal, Typ: e.Type}, true
	case sir.ExprBoolLiteral:
		return ConstValue{Kind: ConstBool, Bool: e.BoolVal, Typ: e.Type}, true

	case sir.ExprSymbol:
		switch e.Sym.Kind {
		case sir.SymConst:
			d := a.unit.Decl(e.Sym.DeclHandle)
			return a.evalConst(d.ValueExpr)
		case sir.SymEnumVariant:
			d := a.unit.Decl(e.Sym.DeclHandle)
			return a.evalConst(d.VariantValue)
		default:
			a.diag.Errorf(e.Span, "%q is not a constant expression", e.Sym.Name)
			return ConstValue{}, false
		}

	case sir.ExprUnary:
		v, ok := a.evalConst(e.A)
		if !ok {
			return ConstValue{}, false
		}
		return a.evalConstUnary(e, v)

	case sir.ExprBinary:
		lhs, ok := a.evalConst(e.A)
		if !ok {
			return ConstValue{}, false
		}
		rhs, ok := a.evalConst(e.B)
		if !ok {
			return ConstValue{}, false
		}
		return a.evalConstBinary(e, lhs, rhs)

	case sir.ExprTuple, sir.ExprArrayLiteral:
		elems := make([]constHandle, 0, len(e.List))
		for _, ch := range e.List {
			cv, ok := a.evalConst(ch)
			if !ok {
				return ConstValue{}, false
			}
			elems = append(elems, a.constPool.intern(cv))
		}
		kind := ConstTuple
		if e.Kind == sir.ExprArrayLiteral {
			kind = ConstArray
		}
		return ConstValue{Kind: kind, Elems: elems, Typ: e.Type}, true

	case sir.ExprIndex:
		base, ok := a.evalConst(e.A)
		if !ok || base.Kind != ConstArray {
			a.diag.Errorf(e.Span, "expression is not a constant array")
			return ConstValue{}, false
		}
		idxv, ok := a.evalConst(e.B)
		if !ok || idxv.Kind != ConstInt {
			a.diag.Errorf(e.Span, "array index is not a constant integer")
			return ConstValue{}, false
		}
		if idxv.Int < 0 || int(idxv.Int) >= len(base.Elems) {
			a.diag.Errorf(e.Span, "constant index %d out of range", idxv.Int)
			return ConstValue{}, false
		}
		return *a.constPool.get(base.Elems[idxv.Int]), true

	case sir.ExprMetaField, sir.ExprMetaCall:
		return a.evalConstMeta(e)

	default:
		a.diag.Errorf(e.Span, "expression is not a constant")
		return ConstValue{}, false
	}
}

func (a *Analyzer) evalConstUnary(e *sir.Expr, v ConstValue) (ConstValue, bool) {
	switch e.UnOp {
	case sir.OpNeg:
		if v.Kind == ConstFloat {
			return ConstValue{Kind: ConstFloat, Float: -v.Float, Typ: e.Type}, true
		}
		return ConstValue{Kind: ConstInt, Int: wrapInt(-v.Int, e.Type), Typ: e.Type}, true
	case sir.OpNot:
		return ConstValue{Kind: ConstBool, Bool: !v.Bool, Typ: e.Type}, true
	case sir.OpBitNot:
		return ConstValue{Kind: ConstInt, Int: wrapInt(^v.Int, e.Type), Typ: e.Type}, true
	default:
		a.diag.Errorf(e.Span, "operator not valid in a constant expression")
		return ConstValue{}, false
	}
}

func (a *Analyzer) evalConstBinary(e *sir.Expr, l, r ConstValue) (ConstValue, bool) {
	if l.Kind == ConstFloat || r.Kind == ConstFloat {
		lf, rf := asFloat(l), asFloat(r)
		switch e.BinOp {
		case sir.OpAdd:
			return ConstValue{Kind: ConstFloat, Float: lf + rf, Typ: e.Type}, true
		case sir.OpSub:
			return ConstValue{Kind: ConstFloat, Float: lf - rf, Typ: e.Type}, true
		case sir.OpMul:
			return ConstValue{Kind: ConstFloat, Float: lf * rf, Typ: e.Type}, true
		case sir.OpDiv:
			return ConstValue{Kind: ConstFloat, Float: lf / rf, Typ: e.Type}, true
		case sir.OpEq:
			return ConstValue{Kind: ConstBool, Bool: lf == rf, Typ: e.Type}, true
		case sir.OpNe:
			return ConstValue{Kind: ConstBool, Bool: lf != rf, Typ: e.Type}, true
		case sir.OpLt:
			return ConstValue{Kind: ConstBool, Bool: lf < rf, Typ: e.Type}, true
		case sir.OpLe:
			return ConstValue{Kind: ConstBool, Bool: lf <= rf, Typ: e.Type}, true
		case sir.OpGt:
			return ConstValue{Kind: ConstBool, Bool: lf > rf, Typ: e.Type}, true
		case sir.OpGe:
			return ConstValue{Kind: ConstBool, Bool: lf >= rf, Typ: e.Type}, true
		default:
			a.diag.Errorf(e.Span, "operator not valid between constant floats")
			return ConstValue{}, false
		}
	}

	if l.Kind == ConstBool || r.Kind == ConstBool {
		switch e.BinOp {
		case sir.OpLogAnd:
			return ConstValue{Kind: ConstBool, Bool: l.Bool && r.Bool, Typ: e.Type}, true
		case sir.OpLogOr:
			return ConstValue{Kind: ConstBool, Bool: l.Bool || r.Bool, Typ: e.Type}, true
		case sir.OpEq:
			return ConstValue{Kind: ConstBool, Bool: l.Bool == r.Bool, Typ: e.Type}, true
		case sir.OpNe:
			return ConstValue{Kind: ConstBool, Bool: l.Bool != r.Bool, Typ: e.Type}, true
		default:
			a.diag.Errorf(e.Span, "operator not valid between constant bools")
			return ConstValue{}, false
		}
	}

	// Integer arithmetic wraps around per the result type's width and
	// signedness (spec's "wrap-around semantics" requirement).
	li, ri := l.Int, r.Int
	var res int64
	switch e.BinOp {
	case sir.OpAdd:
		res = li + ri
	case sir.OpSub:
		res = li - ri
	case sir.OpMul:
		res = li * ri
	case sir.OpDiv:
		if ri == 0 {
			a.diag.Errorf(e.Span, "constant division by zero")
			return ConstValue{}, false
		}
		res = li / ri
	case sir.OpMod:
		if ri == 0 {
			a.diag.Errorf(e.Span, "constant modulo by zero")
			return ConstValue{}, false
		}
		res = li % ri
	case sir.OpBitAnd:
		res = li & ri
	case sir.OpBitOr:
		res = li | ri
	case sir.OpBitXor:
		res = li ^ ri
	case sir.OpShl:
		res = li << uint64(ri)
	case sir.OpShr:
		res = li >> uint64(ri)
	case sir.OpEq:
		return ConstValue{Kind: ConstBool, Bool: li == ri, Typ: e.Type}, true
	case sir.OpNe:
		return ConstValue{Kind: ConstBool, Bool: li != ri, Typ: e.Type}, true
	case sir.OpLt:
		return ConstValue{Kind: ConstBool, Bool: li < ri, Typ: e.Type}, true
	case sir.OpLe:
		return ConstValue{Kind: ConstBool, Bool: li <= ri, Typ: e.Type}, true
	case sir.OpGt:
		return ConstValue{Kind: ConstBool, Bool: li > ri, Typ: e.Type}, true
	case sir.OpGe:
		return ConstValue{Kind: ConstBool, Bool: li >= ri, Typ: e.Type}, true
	default:
		a.diag.Errorf(e.Span, "operator not valid in a constant expression")
		return ConstValue{}, false
	}
	return ConstValue{Kind: ConstInt, Int: wrapInt(res, e.Type), Typ: e.Type}, true
}

func (a *Analyzer) evalConstMeta(e *sir.Expr) (ConstValue, bool) {
	switch e.MetaIntrinsic {
	case sir.MetaIntrinsicSizeOf:
		sz := sizeOf(e.TargetType)
		return ConstValue{Kind: ConstInt, Int: sz, Typ: e.Type}, true
	case sir.MetaIntrinsicAlignOf:
		al := alignOf(e.TargetType)
		return ConstValue{Kind: ConstInt, Int: al, Typ: e.Type}, true
	case sir.MetaIntrinsicIsSameType:
		return ConstValue{Kind: ConstBool, Bool: e.A == e.B, Typ: e.Type}, true
	default:
		a.diag.Errorf(e.Span, "meta intrinsic is not const-evaluable at this point")
		return ConstValue{}, false
	}
}

func asFloat(v ConstValue) float64 {
	if v.Kind == ConstFloat {
		return v.Float
	}
	return float64(v.Int)
}

// wrapInt truncates/sign-extends v to t's declared width and signedness,
// the integer-literal-coercion half of the const evaluator's wrap-around
// requirement.
func wrapInt(v int64, t sir.Type) int64 {
	if t.Kind != sir.TypePrimitive {
		return v
	}
	w := t.Prim.Width()
	if w == 0 || w >= 64 {
		return v
	}
	mask := int64(1)<<uint(w) - 1
	v &= mask
	if t.Prim.Signed() && v&(int64(1)<<uint(w-1)) != 0 {
		v -= int64(1) << uint(w)
	}
	return v
}

// sizeOf/alignOf answer the `size_of`/`align_of` meta-intrinsics purely
// from a Type's shape. Struct, union and other shapes not listed below
// have size 0 (alignment 1): no struct layout is computed, since
// layoutStruct (decl_header.go) only assigns field indices.
func sizeOf(t sir.Type) int64 {
	switch t.Kind {
	case sir.TypePrimitive:
		return int64(t.Prim.Width() / 8)
	case sir.TypePointer, sir.TypeReference, sir.TypeFunc:
		return 8
	case sir.TypeStaticArray:
		return int64(t.Len) * sizeOf(*t.Elem)
	default:
		return 0
	}
}

func alignOf(t sir.Type) int64 {
	if t.Kind == sir.TypeStaticArray {
		return alignOf(*t.Elem)
	}
	sz := sizeOf(t)
	if sz == 0 {
		return 1
	}
	return sz
}

// finalizeConsts evaluates every still-pseudo const expression: enum
// variant values and static-array lengths that weren't needed during
// header analysis (e.g. forward references resolved by then).
func (a *Analyzer) finalizeConsts() {
	for _, m := range a.unit.Modules {
		for _, h := range m.Decls {
			a.finalizeDeclConsts(h)
		}
	}
}

func (a *Analyzer) finalizeDeclConsts(h sir.Handle) {
	d := a.unit.Decl(h)
	switch d.Kind {
	case sir.DeclEnumDef:
		for _, vh := range d.Variants {
			vd := a.unit.Decl(vh)
			if vd.VariantValue != sir.HandleInvalid {
				a.evalConst(vd.VariantValue)
			}
		}
	case sir.DeclConstDef:
		a.evalConst(d.ValueExpr)
	}
}
