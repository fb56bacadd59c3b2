// Package resp implements the RESP3 wire value model together with an
// incremental decoder and a symmetric encoder. See Decoder and Encoder.
package resp

import (
	"math/big"
)

// Kind tags the variant a Value holds, one per RESP3 prefix byte.
type Kind int

const (
	KindSimpleString Kind = iota
	KindError
	KindInteger
	KindDouble
	KindBigNumber
	KindBoolean
	KindNull
	KindBlobString
	KindBlobError
	KindVerbatimString
	KindArray
	KindMap
	KindSet
	KindPush
)

func (k Kind) String() string {
	switch k {
	case KindSimpleString:
		return "simple_string"
	case KindError:
		return "error"
	case KindInteger:
		return "integer"
	case KindDouble:
		return "double"
	case KindBigNumber:
		return "big_number"
	case KindBoolean:
		return "boolean"
	case KindNull:
		return "null"
	case KindBlobString:
		return "blob_string"
	case KindBlobError:
		return "blob_error"
	case KindVerbatimString:
		return "verbatim_string"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindSet:
		return "set"
	case KindPush:
		return "push"
	default:
		return "unknown"
	}
}

// Pair is one key/value entry of a Map or the Attributes sidecar. Order is
// preserved; duplicate keys are not folded here — consumers may fold.
type Pair struct {
	Key   Value
	Value Value
}

// Value is a RESP3 tagged value. Only the fields relevant to Kind are
// meaningful; the zero value of the others is ignored.
//
// Nil-vs-empty distinguishes null from empty for the byte-slice and
// slice-valued kinds: a nil Blob is the null blob_string ($-1); a non-nil,
// zero-length Blob is the empty blob_string ($0). The same rule applies to
// Array for array/set/push and to Map for map — nil means the RESP3 null
// aggregate, non-nil-empty means a zero-length aggregate. Push is never
// nil: a `>-1\r\n` decodes as an empty (non-nil) push.
type Value struct {
	Kind Kind

	// simple_string, verbatim_string text payload (verbatim's raw bytes
	// live in Blob; Text is unused there — see Format/Blob below).
	Text string

	// error / blob_error: Code is the uppercase token preceding the first
	// space, Message is the remainder. Code is empty when no token was
	// found, in which case Message holds the whole payload.
	Code    string
	Message string

	Int   int64
	Float float64
	Bool  bool

	// big_number: BigInt is set when the literal parses as an integer;
	// otherwise Literal carries the raw digit string — a
	// non-big-int-parseable big_number is not a decode error.
	BigInt  *big.Int
	Literal string

	// blob_string, blob_error, verbatim_string payload.
	Blob []byte
	// verbatim_string's 3-byte format tag, e.g. "txt", "mkd", "html".
	Format string

	// array, set, push, and (flattened import path) map children.
	Array []Value
	Map   []Pair

	// Attributes decorates this value; nil when none were sent, non-nil
	// and empty for an empty attribute set. The decoder attaches pending
	// attributes to the next value of any kind, a push included.
	Attributes []Pair
}

func SimpleString(s string) Value { return Value{Kind: KindSimpleString, Text: s} }

func Err(code, message string) Value {
	return Value{Kind: KindError, Code: code, Message: message}
}

func Integer(n int64) Value { return Value{Kind: KindInteger, Int: n} }

func Double(f float64) Value { return Value{Kind: KindDouble, Float: f} }

func BigNumber(n *big.Int) Value { return Value{Kind: KindBigNumber, BigInt: n} }

func BigNumberLiteral(lit string) Value { return Value{Kind: KindBigNumber, Literal: lit} }

func Boolean(b bool) Value { return Value{Kind: KindBoolean, Bool: b} }

func Null() Value { return Value{Kind: KindNull} }

func BlobString(b []byte) Value { return Value{Kind: KindBlobString, Blob: b} }

func NullBlobString() Value { return Value{Kind: KindBlobString, Blob: nil} }

func BlobErr(code, message string) Value {
	return Value{Kind: KindBlobError, Code: code, Message: message}
}

func VerbatimString(format string, data []byte) Value {
	return Value{Kind: KindVerbatimString, Format: format, Blob: data}
}

func Array(elems []Value) Value { return Value{Kind: KindArray, Array: elems} }

func NullArray() Value { return Value{Kind: KindArray, Array: nil} }

func Map(pairs []Pair) Value { return Value{Kind: KindMap, Map: pairs} }

func NullMap() Value { return Value{Kind: KindMap, Map: nil} }

func Set(elems []Value) Value { return Value{Kind: KindSet, Array: elems} }

func NullSet() Value { return Value{Kind: KindSet, Array: nil} }

func Push(elems []Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{Kind: KindPush, Array: elems}
}

// IsNull reports whether v is the null representation of its own Kind —
// either the dedicated KindNull scalar, or a nil-payload blob/aggregate.
func (v Value) IsNull() bool {
	switch v.Kind {
	case KindNull:
		return true
	case KindBlobString, KindVerbatimString:
		return v.Blob == nil
	case KindArray, KindSet:
		return v.Array == nil
	case KindMap:
		return v.Map == nil
	default:
		return false
	}
}

// WithAttributes returns a copy of v decorated with the given attributes.
func (v Value) WithAttributes(attrs []Pair) Value {
	v.Attributes = attrs
	return v
}

// Equal compares two Values structurally, the notion of equality the
// round-trip property decode(encode(v)).Equal(v) relies on. Attributes
// are compared; map/attribute pairs are compared in order (duplicates
// are not folded).
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	if !pairsEqual(v.Attributes, other.Attributes) {
		return false
	}
	switch v.Kind {
	case KindSimpleString:
		return v.Text == other.Text
	case KindError, KindBlobError:
		return v.Code == other.Code && v.Message == other.Message
	case KindInteger:
		return v.Int == other.Int
	case KindDouble:
		return doubleEqual(v.Float, other.Float)
	case KindBigNumber:
		if v.BigInt != nil && other.BigInt != nil {
			return v.BigInt.Cmp(other.BigInt) == 0
		}
		if v.BigInt == nil && other.BigInt == nil {
			return v.Literal == other.Literal
		}
		return false
	case KindBoolean:
		return v.Bool == other.Bool
	case KindNull:
		return true
	case KindBlobString:
		return bytesEqual(v.Blob, other.Blob)
	case KindVerbatimString:
		return v.Format == other.Format && bytesEqual(v.Blob, other.Blob)
	case KindArray, KindSet, KindPush:
		return arraysEqual(v.Array, other.Array)
	case KindMap:
		return pairsEqual(v.Map, other.Map)
	default:
		return false
	}
}

func doubleEqual(a, b float64) bool {
	if a != a && b != b { // both NaN
		return true
	}
	return a == b
}

func bytesEqual(a, b []byte) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func arraysEqual(a, b []Value) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func pairsEqual(a, b []Pair) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Key.Equal(b[i].Key) || !a[i].Value.Equal(b[i].Value) {
			return false
		}
	}
	return true
}
