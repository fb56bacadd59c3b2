package resp

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/samber/lo"
)

// Encoder serializes Values and commands back to RESP3 wire bytes. It owns
// a growable in-memory buffer rather than writing directly to a
// connection, so the session can batch a command's bytes before handing
// them to the transport in one Write call.
type Encoder struct {
	buf bytes.Buffer
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the accumulated buffer without resetting it.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Reset clears the buffer for reuse.
func (e *Encoder) Reset() {
	e.buf.Reset()
}

// Encode appends the wire form of v (including any attributes) to the
// buffer: attributes on a value are emitted as the attributes aggregate
// first, then the value itself.
func (e *Encoder) Encode(v Value) error {
	if v.Attributes != nil {
		e.buf.WriteByte(prefixAttribute)
		e.buf.WriteString(strconv.Itoa(len(v.Attributes)))
		e.buf.WriteString(crlf)
		for _, p := range v.Attributes {
			if err := e.Encode(p.Key); err != nil {
				return err
			}
			if err := e.Encode(p.Value); err != nil {
				return err
			}
		}
	}
	return e.encodeBare(v)
}

func (e *Encoder) encodeBare(v Value) error {
	switch v.Kind {
	case KindSimpleString:
		e.writeLine(prefixSimpleString, v.Text)
	case KindError:
		e.writeLine(prefixError, joinCodeMessage(v.Code, v.Message))
	case KindInteger:
		e.writeLine(prefixInteger, strconv.FormatInt(v.Int, 10))
	case KindDouble:
		e.writeLine(prefixDouble, formatDouble(v.Float))
	case KindBigNumber:
		if v.BigInt != nil {
			e.writeLine(prefixBigNumber, v.BigInt.String())
		} else {
			e.writeLine(prefixBigNumber, v.Literal)
		}
	case KindBoolean:
		if v.Bool {
			e.writeLine(prefixBoolean, "t")
		} else {
			e.writeLine(prefixBoolean, "f")
		}
	case KindNull:
		e.buf.WriteByte(prefixNull)
		e.buf.WriteString(crlf)
	case KindBlobString:
		e.writeBlob(prefixBlobString, v.Blob)
	case KindBlobError:
		if v.Blob != nil {
			e.writeBlob(prefixBlobError, v.Blob)
		} else {
			e.writeBlob(prefixBlobError, []byte(joinCodeMessage(v.Code, v.Message)))
		}
	case KindVerbatimString:
		payload := append([]byte(formatOrDefault(v.Format)+":"), v.Blob...)
		e.writeBlob(prefixVerbatim, payload)
	case KindArray:
		return e.encodeAggregate(prefixArray, v.Array, nil)
	case KindSet:
		return e.encodeAggregate(prefixSet, v.Array, nil)
	case KindPush:
		return e.encodeAggregate(prefixPush, v.Array, nil)
	case KindMap:
		return e.encodeAggregate(prefixMap, nil, v.Map)
	default:
		return fmt.Errorf("resp: cannot encode unknown kind %v", v.Kind)
	}
	return nil
}

func (e *Encoder) encodeAggregate(prefix byte, elems []Value, pairs []Pair) error {
	if prefix == prefixMap {
		if pairs == nil {
			e.buf.WriteByte(prefix)
			e.buf.WriteString("-1")
			e.buf.WriteString(crlf)
			return nil
		}
		e.buf.WriteByte(prefix)
		e.buf.WriteString(strconv.Itoa(len(pairs)))
		e.buf.WriteString(crlf)
		for _, p := range pairs {
			if err := e.Encode(p.Key); err != nil {
				return err
			}
			if err := e.Encode(p.Value); err != nil {
				return err
			}
		}
		return nil
	}
	if elems == nil {
		e.buf.WriteByte(prefix)
		e.buf.WriteString("-1")
		e.buf.WriteString(crlf)
		return nil
	}
	e.buf.WriteByte(prefix)
	e.buf.WriteString(strconv.Itoa(len(elems)))
	e.buf.WriteString(crlf)
	for _, el := range elems {
		if err := e.Encode(el); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) writeLine(prefix byte, s string) {
	e.buf.WriteByte(prefix)
	e.buf.WriteString(s)
	e.buf.WriteString(crlf)
}

func (e *Encoder) writeBlob(prefix byte, b []byte) {
	e.buf.WriteByte(prefix)
	if b == nil {
		e.buf.WriteString("-1")
		e.buf.WriteString(crlf)
		return
	}
	e.buf.WriteString(strconv.Itoa(len(b)))
	e.buf.WriteString(crlf)
	e.buf.Write(b)
	e.buf.WriteString(crlf)
}

func formatDouble(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

func formatOrDefault(format string) string {
	if format == "" {
		return "txt"
	}
	return format
}

func joinCodeMessage(code, message string) string {
	if code == "" {
		return message
	}
	return code + " " + message
}

// EncodeCommand serializes a command as an array-of-blob-strings: an array
// header with length n+1 (verb plus each argument), one blob per token.
// Argument coercion: string → UTF-8 bytes, integer → ASCII decimal,
// []byte → passthrough, bool → "t"/"f", anything else → fmt.Sprint. The
// decoder's symmetric contract does not apply to this path — servers only
// ever consume commands shaped this way.
func (e *Encoder) EncodeCommand(verb string, args ...any) error {
	tokens := append([][]byte{[]byte(verb)}, lo.Map(args, func(arg any, _ int) []byte {
		return coerceArg(arg)
	})...)
	e.buf.WriteByte(prefixArray)
	e.buf.WriteString(strconv.Itoa(len(tokens)))
	e.buf.WriteString(crlf)
	for _, t := range tokens {
		e.writeBlob(prefixBlobString, t)
	}
	return nil
}

func coerceArg(arg any) []byte {
	switch v := arg.(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	case bool:
		return lo.Ternary(v, []byte("t"), []byte("f"))
	case int:
		return []byte(strconv.FormatInt(int64(v), 10))
	case int64:
		return []byte(strconv.FormatInt(v, 10))
	case int32:
		return []byte(strconv.FormatInt(int64(v), 10))
	case uint64:
		return []byte(strconv.FormatUint(v, 10))
	case float64:
		return []byte(strconv.FormatFloat(v, 'g', -1, 64))
	default:
		return []byte(fmt.Sprint(v))
	}
}

// EncodeSequence serializes values back to back with no enclosing
// aggregate, e.g. for composing a handshake frame out of scalar pieces.
func (e *Encoder) EncodeSequence(values []Value) error {
	for _, v := range values {
		if err := e.Encode(v); err != nil {
			return err
		}
	}
	return nil
}
