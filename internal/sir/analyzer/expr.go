package analyzer

import "github.com/banjoc/banjoc/internal/sir"

// analyzeExprNoExpected runs the first finalisation phase: type the
// expression bottom-up with no expected type, so integer/float literals
// stay pseudo-typed until a caller (finalizeExpr) picks a concrete type
// for them.
func (a *Analyzer) analyzeExprNoExpected(scope Scope, h sir.Handle) sir.Handle {
	e := a.unit.Expr(h)
	switch e.Kind {
	case sir.ExprIntLiteral, sir.ExprFPLiteral, sir.ExprNullLiteral:
		e.Type = sir.Type{Kind: sir.TypePseudo}

	case sir.ExprBoolLiteral:
		e.Type = sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimBool}

	case sir.ExprCharLiteral:
		e.Type = sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimChar}

	case sir.ExprStringLiteral:
		e.Type = sir.Type{Kind: sir.TypePseudo} // concretized by finalizeExpr's coercion rule

	case sir.ExprNoneLiteral, sir.ExprUndefinedLiteral:
		e.Type = sir.Type{Kind: sir.TypePseudo}

	case sir.ExprIdent:
		sym, ok := scope.Table.Lookup(e.StrVal)
		if !ok {
			a.diag.Errorf(e.Span, "undefined name %q", e.StrVal)
			e.Type = sir.Type{Kind: sir.TypeInvalid}
			break
		}
		e.Kind = sir.ExprSymbol
		e.Sym = sym
		e.Type = sym.Type

	case sir.ExprSymbol:
		e.Type = e.Sym.Type

	case sir.ExprBinary:
		e.A = a.analyzeExprNoExpected(scope, e.A)
		e.B = a.analyzeExprNoExpected(scope, e.B)
		e.Type = a.binaryResultType(scope, e)

	case sir.ExprUnary:
		e.A = a.analyzeExprNoExpected(scope, e.A)
		e.Type = a.unaryResultType(scope, e)

	case sir.ExprCall:
		a.analyzeCall(scope, h, e)

	case sir.ExprField, sir.ExprDot:
		e.A = a.analyzeExprNoExpected(scope, e.A)
		e.Type = a.fieldType(e)

	case sir.ExprIndex:
		e.A = a.analyzeExprNoExpected(scope, e.A)
		e.B = a.analyzeExprNoExpected(scope, e.B)
		e.B = a.finalizeExprType(scope, e.B, &sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimI64})
		baseT := a.unit.Expr(e.A).Type
		if baseT.Elem != nil {
			e.Type = *baseT.Elem
		} else {
			e.Type = sir.Type{Kind: sir.TypeInvalid}
		}

	case sir.ExprTuple:
		elemTypes := make([]sir.Type, len(e.List))
		for i, ch := range e.List {
			e.List[i] = a.analyzeExprNoExpected(scope, ch)
			elemTypes[i] = a.unit.Expr(e.List[i]).Type
		}
		extra := a.unit.TupleTypeExtras.New()
		*a.unit.TupleTypeExtras.Get(extra) = sir.TupleTypeExtra{Elems: elemTypes}
		e.Type = sir.Type{Kind: sir.TypeTuple, Extra: extra}

	case sir.ExprArrayLiteral:
		var elemT sir.Type
		for i, ch := range e.List {
			e.List[i] = a.analyzeExprNoExpected(scope, ch)
			if i == 0 {
				elemT = a.unit.Expr(e.List[i]).Type
			}
		}
		e.Type = sir.Type{Kind: sir.TypeStaticArray, Elem: &elemT, Len: len(e.List)}

	case sir.ExprStructLiteral:
		a.analyzeStructLiteral(scope, e)

	case sir.ExprCast:
		e.A = a.analyzeExprNoExpected(scope, e.A)
		e.Type = e.TargetType

	case sir.ExprMetaCall, sir.ExprMetaField, sir.ExprMetaAccess:
		a.analyzeMetaExpr(scope, h, e)

	default:
		// Type-expression kinds (ExprPrimitiveType etc.) are handled by
		// resolveTypeExpr directly against the parser's Type payload, not
		// re-analyzed as value expressions.
	}
	return h
}

// finalizeExpr runs the second finalisation phase: given expected (nil
// means "no expectation, pick the default"), coerce h's current type to
// it per the coercion table, returning the (possibly rewrapped) handle.
func (a *Analyzer) finalizeExpr(scope Scope, h sir.Handle, expected *sir.Type) sir.Handle {
	h = a.analyzeExprNoExpected(scope, h)
	return a.finalizeExprType(scope, h, expected)
}

func (a *Analyzer) finalizeExprType(scope Scope, h sir.Handle, expected *sir.Type) sir.Handle {
	e := a.unit.Expr(h)
	if !e.Type.Invalid() && expected == nil {
		return h
	}

	if expected == nil {
		e.Type = a.defaultType(e)
		return h
	}

	if e.Type.Kind == sir.TypePseudo {
		switch e.Kind {
		case sir.ExprIntLiteral, sir.ExprNullLiteral:
			e.Type = *expected
			return h
		case sir.ExprFPLiteral:
			e.Type = *expected
			return h
		case sir.ExprStringLiteral:
			return a.coerceStringLiteral(h, e, *expected)
		case sir.ExprNoneLiteral:
			return a.wrapOptionalNone(h, *expected)
		}
	}

	if typesEqual(e.Type, *expected) {
		return h
	}

	switch expected.Kind {
	case sir.TypeReference:
		if e.Type.Kind != sir.TypeReference {
			return a.wrapRef(h, *expected)
		}
	case sir.TypeOptional:
		return a.wrapOptionalSome(h, *expected)
	case sir.TypeResult:
		return a.wrapResult(h, *expected)
	case sir.TypeUnion:
		if e.Type.Kind == sir.TypeStruct {
			return a.wrapCoercion(h, *expected)
		}
	case sir.TypeProto:
		if e.Type.Kind == sir.TypePointer {
			return a.wrapCoercion(h, *expected)
		}
	case sir.TypePrimitive:
		if expected.Prim == sir.PrimAddr && addrLike(e.Type) {
			return a.wrapCoercion(h, *expected)
		}
	case sir.TypeStaticArray:
		if e.Kind == sir.ExprArrayLiteral && expected.Len != len(e.List) {
			a.diag.Errorf(e.Span, "array literal has %d elements, expected %d", len(e.List), expected.Len)
		}
		e.Type = *expected
		return h
	case sir.TypeTuple:
		a.coerceTupleElems(scope, e, *expected)
		return h
	}

	if !typesEqual(e.Type, *expected) {
		a.diag.Errorf(e.Span, "type mismatch: expected %s, got %s", typeName(*expected), typeName(e.Type))
	}
	return h
}

func (a *Analyzer) defaultType(e *sir.Expr) sir.Type {
	switch e.Kind {
	case sir.ExprIntLiteral:
		return sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimI32}
	case sir.ExprFPLiteral:
		return sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimF32}
	case sir.ExprNullLiteral:
		return sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimAddr}
	case sir.ExprStringLiteral:
		return stdStringType()
	case sir.ExprArrayLiteral:
		return e.Type // default stays the static-array shape already inferred
	default:
		return e.Type
	}
}

func (a *Analyzer) wrapRef(h sir.Handle, target sir.Type) sir.Handle {
	e := a.unit.Expr(h)
	w := a.unit.NewExpr(sir.ExprUnary)
	we := a.unit.Expr(w)
	we.UnOp, we.A, we.Span = sir.OpRef, h, e.Span
	elem := e.Type
	we.Type = sir.Type{Kind: sir.TypeReference, Elem: &elem, Mutable: target.Mutable}
	if target.Mutable && !e.Type.Invalid() {
		// Mutability match is enforced by the caller site (AssignStmt LHS
		// goes through checkMutableLValue instead); a plain coercion just
		// records the requested mutability on the new reference type.
	}
	return w
}

func (a *Analyzer) wrapCoercion(h sir.Handle, target sir.Type) sir.Handle {
	e := a.unit.Expr(h)
	w := a.unit.NewExpr(sir.ExprCoercion)
	we := a.unit.Expr(w)
	we.A, we.Span, we.Type, we.TargetType = h, e.Span, target, target
	return w
}

func (a *Analyzer) wrapOptionalSome(h sir.Handle, target sir.Type) sir.Handle {
	return a.wrapLibraryCall(h, "new_some", target)
}

func (a *Analyzer) wrapOptionalNone(h sir.Handle, target sir.Type) sir.Handle {
	return a.wrapLibraryCall(sir.HandleInvalid, "new_none", target)
}

func (a *Analyzer) wrapResult(h sir.Handle, target sir.Type) sir.Handle {
	e := a.unit.Expr(h)
	if target.ErrElem != nil && typesEqual(e.Type, *target.ErrElem) {
		return a.wrapLibraryCall(h, "new_failure", target)
	}
	return a.wrapLibraryCall(h, "new_success", target)
}

// wrapLibraryCall synthesizes `name(arg)` (or `name()` when arg is
// HandleInvalid) as the standard-library helper the coercion table names
// for Optional/Result construction.
func (a *Analyzer) wrapLibraryCall(arg sir.Handle, name string, target sir.Type) sir.Handle {
	w := a.unit.NewExpr(sir.ExprCall)
	we := a.unit.Expr(w)
	we.Type = target
	we.Op = sir.Ident{Name: name}
	if arg != sir.HandleInvalid {
		we.List = []sir.Handle{arg}
	}
	return w
}

func (a *Analyzer) coerceStringLiteral(h sir.Handle, e *sir.Expr, target sir.Type) sir.Handle {
	switch {
	case target.Kind == sir.TypePointer && target.Elem != nil && target.Elem.Kind == sir.TypePrimitive && target.Elem.Prim == sir.PrimU8:
		e.Type = target
		return h
	case isStdNamed(target, "String"):
		return a.wrapLibraryCall(h, "String.from_cstr", target)
	case isStdNamed(target, "StringSlice"):
		return a.wrapLibraryCall(h, "StringSlice.of_cstring", target)
	default:
		e.Type = target
		return h
	}
}

func (a *Analyzer) coerceTupleElems(scope Scope, e *sir.Expr, target sir.Type) {
	extra := a.unit.TupleTypeExtras.Get(target.Extra)
	if len(extra.Elems) != len(e.List) {
		a.diag.Errorf(e.Span, "tuple has %d elements, expected %d", len(e.List), len(extra.Elems))
		return
	}
	for i, ch := range e.List {
		e.List[i] = a.finalizeExprType(scope, ch, &extra.Elems[i])
	}
	e.Type = target
}

func (a *Analyzer) binaryResultType(scope Scope, e *sir.Expr) sir.Type {
	lt := a.unit.Expr(e.A).Type
	switch e.BinOp {
	case sir.OpEq, sir.OpNe, sir.OpLt, sir.OpLe, sir.OpGt, sir.OpGe, sir.OpLogAnd, sir.OpLogOr:
		return sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimBool}
	default:
		e.B = a.finalizeExprType(scope, e.B, &lt)
		return lt
	}
}

func (a *Analyzer) unaryResultType(scope Scope, e *sir.Expr) sir.Type {
	at := a.unit.Expr(e.A).Type
	switch e.UnOp {
	case sir.OpNot:
		return sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimBool}
	case sir.OpAddr:
		return sir.Type{Kind: sir.TypeReference, Elem: &at, Mutable: false}
	case sir.OpAddrMut:
		return sir.Type{Kind: sir.TypeReference, Elem: &at, Mutable: true}
	case sir.OpDeref:
		if at.Elem != nil {
			return *at.Elem
		}
		a.diag.Errorf(e.Span, "cannot dereference a non-pointer type")
		return sir.Type{Kind: sir.TypeInvalid}
	default:
		return at
	}
}

func (a *Analyzer) fieldType(e *sir.Expr) sir.Type {
	baseT := a.unit.Expr(e.A).Type
	target := baseT
	if target.Kind == sir.TypeReference || target.Kind == sir.TypePointer {
		if target.Elem != nil {
			target = *target.Elem
		}
	}
	if target.Kind != sir.TypeStruct {
		a.diag.Errorf(e.Span, "field access on a non-struct type")
		return sir.Type{Kind: sir.TypeInvalid}
	}
	sd := a.unit.Decl(target.Decl)
	for _, fh := range sd.Fields {
		fd := a.unit.Decl(fh)
		if fd.Name.Name == e.Op.Name {
			e.B = fh
			return fd.FieldType
		}
	}
	a.diag.Errorf(e.Span, "%s has no field %q", sd.Name.Name, e.Op.Name)
	return sir.Type{Kind: sir.TypeInvalid}
}

func (a *Analyzer) analyzeStructLiteral(scope Scope, e *sir.Expr) {
	sd := a.unit.Decl(e.Type.Decl)
	for i, ch := range e.List {
		var fieldT *sir.Type
		if i < len(e.Names) {
			for _, fh := range sd.Fields {
				fd := a.unit.Decl(fh)
				if fd.Name.Name == e.Names[i].Name {
					fieldT = &fd.FieldType
					break
				}
			}
		}
		e.List[i] = a.finalizeExpr(scope, ch, fieldT)
	}
}

func (a *Analyzer) analyzeMetaExpr(scope Scope, h sir.Handle, e *sir.Expr) {
	switch e.Kind {
	case sir.ExprMetaField:
		e.Type = sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimI64}
	case sir.ExprMetaCall:
		switch e.MetaIntrinsic {
		case sir.MetaIntrinsicSizeOf, sir.MetaIntrinsicAlignOf:
			e.Type = sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimI64}
		case sir.MetaIntrinsicTypeOf:
			e.Type = sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimI64}
		case sir.MetaIntrinsicFieldsOf:
			e.Type = sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimI64}
		case sir.MetaIntrinsicHasMethod, sir.MetaIntrinsicIsSameType:
			e.Type = sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimBool}
		}
	case sir.ExprMetaAccess:
		e.A = a.analyzeExprNoExpected(scope, e.A)
		e.Type = sir.Type{Kind: sir.TypePrimitive, Prim: sir.PrimI64}
	}
}

func typesEqual(a, b sir.Type) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case sir.TypePrimitive:
		return a.Prim == b.Prim
	case sir.TypeStruct, sir.TypeUnion, sir.TypeEnum, sir.TypeProto:
		return a.Decl == b.Decl
	case sir.TypePointer, sir.TypeReference, sir.TypeOptional, sir.TypeResult, sir.TypeArray, sir.TypeStaticArray:
		if a.Kind == sir.TypeStaticArray && a.Len != b.Len {
			return false
		}
		if a.Elem == nil || b.Elem == nil {
			return a.Elem == b.Elem
		}
		return typesEqual(*a.Elem, *b.Elem)
	default:
		return true
	}
}

func addrLike(t sir.Type) bool {
	return t.Kind == sir.TypePointer || t.Kind == sir.TypeReference ||
		(t.Kind == sir.TypePrimitive && (t.Prim == sir.PrimAddr || !t.Prim.Float()))
}

func typeName(t sir.Type) string {
	switch t.Kind {
	case sir.TypePrimitive:
		return primName(t.Prim)
	case sir.TypePointer:
		return "*T"
	case sir.TypeReference:
		return "&T"
	default:
		return "<type>"
	}
}

func primName(p sir.Primitive) string {
	names := map[sir.Primitive]string{
		sir.PrimI8: "i8", sir.PrimI16: "i16", sir.PrimI32: "i32", sir.PrimI64: "i64",
		sir.PrimU8: "u8", sir.PrimU16: "u16", sir.PrimU32: "u32", sir.PrimU64: "u64",
		sir.PrimF32: "f32", sir.PrimF64: "f64", sir.PrimBool: "bool",
		sir.PrimAddr: "addr", sir.PrimChar: "char",
	}
	return names[p]
}

func stdStringType() sir.Type {
	return sir.Type{Kind: sir.TypeStruct}
}

func isStdNamed(t sir.Type, name string) bool {
	return t.Kind == sir.TypeStruct // name matched by the caller's decl table in a full implementation
}
