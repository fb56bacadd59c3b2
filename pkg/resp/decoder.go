package resp

import (
	"bytes"

	"github.com/maxubrq/redisX/pkg/common"
)

// frameKind identifies which aggregate a stack frame is assembling.
type frameKind int

const (
	frameArray frameKind = iota
	frameMap
	frameSet
	framePush
	frameAttr
)

// frame is one in-progress aggregate context, pushed when an aggregate
// header is read and popped when its last child arrives. headerAttrs holds
// the attributes that were pending immediately before this frame's own
// aggregate header; it decorates the frame's finalized value, not its
// children. frameAttr frames never carry headerAttrs of their own — an
// attributes aggregate is never itself decorated.
type frame struct {
	kind        frameKind
	remaining   int
	children    []Value
	headerAttrs []Pair
}

// Decoder incrementally parses RESP3 frames out of arbitrary byte chunks.
// Feed may be called with any split of a byte stream; a value split across
// calls resumes exactly where the previous call left off.
//
// A Decoder is single-owner: the session feeds it from one goroutine. It
// is not safe for concurrent use, by design.
type Decoder struct {
	buf []byte
	pos int

	stack        []*frame
	pendingAttrs []Pair
	attrsPending bool // distinguishes "no pending attrs" from "pending attrs is the empty set"

	// OnReply receives every complete top-level value that is not a push.
	OnReply func(Value)
	// OnPush receives push frames. If nil, pushes fall back to OnReply.
	OnPush func(Value)
	// OnError receives fatal decode problems. After it fires the decoder
	// has already reset itself and is ready for the next Feed.
	OnError func(error)
}

// NewDecoder returns a Decoder with no sinks wired; set OnReply/OnPush/
// OnError before calling Feed.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends data to the decoder's buffer and drains as many complete
// top-level values as the buffered bytes allow. It never blocks and never
// re-parses bytes already committed from a prior call.
func (d *Decoder) Feed(data []byte) {
	if len(data) > 0 {
		d.buf = append(d.buf, data...)
	}
	for {
		progressed, err := d.step()
		if err != nil {
			if d.OnError != nil {
				d.OnError(err)
			}
			d.reset()
			return
		}
		if !progressed {
			return
		}
		if d.pos > 0 {
			d.buf = d.buf[d.pos:]
			d.pos = 0
		}
		if len(d.buf) == 0 {
			return
		}
	}
}

// reset drops the buffer, the frame stack, and any pending attributes —
// the fatal reset policy: the next Feed starts fresh.
func (d *Decoder) reset() {
	d.buf = nil
	d.pos = 0
	d.stack = nil
	d.pendingAttrs = nil
	d.attrsPending = false
}

// step runs the dispatch loop until either a complete top-level value is
// delivered to a sink (progressed=true), the buffered bytes run out before
// a value or aggregate header can be fully read (progressed=false, err=nil
// — NeedMore), or a decode error occurs.
func (d *Decoder) step() (progressed bool, err error) {
	for {
		tok, ok, terr := d.readToken()
		if terr != nil {
			return false, terr
		}
		if !ok {
			return false, nil
		}

		switch tok.kind {
		case tokImmediateAttrs:
			d.pendingAttrs = tok.attrs
			d.attrsPending = true
			continue

		case tokFramePush:
			d.stack = append(d.stack, tok.frame)
			continue

		case tokValue:
			v := tok.value
			if d.attrsPending {
				v.Attributes = d.pendingAttrs
				d.pendingAttrs = nil
				d.attrsPending = false
			}
			delivered, isTop := d.bubble(v)
			if !isTop {
				continue
			}
			if delivered.Kind == KindPush {
				if d.OnPush != nil {
					d.OnPush(delivered)
				} else if d.OnReply != nil {
					d.OnReply(delivered)
				}
			} else if d.OnReply != nil {
				d.OnReply(delivered)
			}
			return true, nil
		}
	}
}

// bubble attaches v as the next child of the current top frame (if any),
// cascading finalization up through any frames that become complete. When
// the stack empties, v (or whatever it finalized into) is the top-level
// result.
func (d *Decoder) bubble(v Value) (Value, bool) {
	for {
		if len(d.stack) == 0 {
			return v, true
		}
		top := d.stack[len(d.stack)-1]
		top.children = append(top.children, v)
		top.remaining--
		if top.remaining > 0 {
			return Value{}, false
		}
		d.stack = d.stack[:len(d.stack)-1]
		if top.kind == frameAttr {
			d.pendingAttrs = pairsFromChildren(top.children)
			d.attrsPending = true
			return Value{}, false
		}
		v = finalizeFrame(top)
	}
}

func finalizeFrame(f *frame) Value {
	var v Value
	switch f.kind {
	case frameArray:
		v = Array(f.children)
	case frameSet:
		v = Set(f.children)
	case framePush:
		v = Push(f.children)
	case frameMap:
		v = Map(pairsFromChildren(f.children))
	}
	v.Attributes = f.headerAttrs
	return v
}

func pairsFromChildren(children []Value) []Pair {
	pairs := make([]Pair, 0, len(children)/2)
	for i := 0; i+1 < len(children); i += 2 {
		pairs = append(pairs, Pair{Key: children[i], Value: children[i+1]})
	}
	return pairs
}

const (
	tokValue = iota
	tokFramePush
	tokImmediateAttrs
)

type token struct {
	kind  int
	value Value
	frame *frame
	attrs []Pair
}

// readToken reads exactly one value, aggregate header, or attributes
// header at the current position. ok=false means NeedMore; the position is
// left unchanged (rolled back to the start of this token) in that case.
func (d *Decoder) readToken() (token, bool, error) {
	if d.pos >= len(d.buf) {
		return token{}, false, nil
	}
	start := d.pos
	prefix := d.buf[d.pos]
	d.pos++

	rollback := func() (token, bool, error) {
		d.pos = start
		return token{}, false, nil
	}
	fail := func(err error) (token, bool, error) {
		d.pos = start
		return token{}, false, withOffset(err, start)
	}

	switch prefix {
	case prefixSimpleString:
		line, ok, err := d.readLine()
		if err != nil {
			return fail(err)
		}
		if !ok {
			return rollback()
		}
		return token{kind: tokValue, value: SimpleString(string(line))}, true, nil

	case prefixError:
		line, ok, err := d.readLine()
		if err != nil {
			return fail(err)
		}
		if !ok {
			return rollback()
		}
		code, msg := splitCodeMessage(line)
		return token{kind: tokValue, value: Err(code, msg)}, true, nil

	case prefixInteger:
		line, ok, err := d.readLine()
		if err != nil {
			return fail(err)
		}
		if !ok {
			return rollback()
		}
		n, perr := parseInt64(line)
		if perr != nil {
			return fail(withOffset(perr, start))
		}
		return token{kind: tokValue, value: Integer(n)}, true, nil

	case prefixDouble:
		line, ok, err := d.readLine()
		if err != nil {
			return fail(err)
		}
		if !ok {
			return rollback()
		}
		f, perr := parseDouble(line)
		if perr != nil {
			return fail(withOffset(perr, start))
		}
		return token{kind: tokValue, value: Double(f)}, true, nil

	case prefixBigNumber:
		line, ok, err := d.readLine()
		if err != nil {
			return fail(err)
		}
		if !ok {
			return rollback()
		}
		return token{kind: tokValue, value: parseBigNumber(line)}, true, nil

	case prefixBoolean:
		b, ok := d.readN(1)
		if !ok {
			return rollback()
		}
		crlfOK, err := d.readCRLF()
		if err != nil {
			return fail(err)
		}
		if !crlfOK {
			return rollback()
		}
		bv, perr := parseBool(b[0])
		if perr != nil {
			return fail(withOffset(perr, start))
		}
		return token{kind: tokValue, value: Boolean(bv)}, true, nil

	case prefixNull:
		crlfOK, err := d.readCRLF()
		if err != nil {
			return fail(err)
		}
		if !crlfOK {
			return rollback()
		}
		return token{kind: tokValue, value: Null()}, true, nil

	case prefixBlobString:
		length, ok, err := d.readLengthLine()
		if err != nil {
			return fail(withOffset(err, start))
		}
		if !ok {
			return rollback()
		}
		if length == -1 {
			return token{kind: tokValue, value: NullBlobString()}, true, nil
		}
		if length < -1 {
			return fail(errDecode(CodeInvalidLength, "negative blob length %d", length))
		}
		body, ok, berr := d.readBlobBody(length)
		if berr != nil {
			return fail(berr)
		}
		if !ok {
			return rollback()
		}
		return token{kind: tokValue, value: BlobString(body)}, true, nil

	case prefixBlobError:
		length, ok, err := d.readLengthLine()
		if err != nil {
			return fail(withOffset(err, start))
		}
		if !ok {
			return rollback()
		}
		if length == -1 {
			// A -1-length blob error is contradictory; decode as an
			// empty-message blob error rather than a decode error.
			return token{kind: tokValue, value: BlobErr("", "")}, true, nil
		}
		if length < -1 {
			return fail(errDecode(CodeInvalidLength, "negative blob length %d", length))
		}
		body, ok, berr := d.readBlobBody(length)
		if berr != nil {
			return fail(berr)
		}
		if !ok {
			return rollback()
		}
		code, msg := splitCodeMessageBytes(body)
		return token{kind: tokValue, value: BlobErr(code, msg)}, true, nil

	case prefixVerbatim:
		length, ok, err := d.readLengthLine()
		if err != nil {
			return fail(withOffset(err, start))
		}
		if !ok {
			return rollback()
		}
		if length < -1 {
			return fail(errDecode(CodeInvalidLength, "negative verbatim length %d", length))
		}
		var body []byte
		if length != -1 {
			var berr error
			body, ok, berr = d.readBlobBody(length)
			if berr != nil {
				return fail(berr)
			}
			if !ok {
				return rollback()
			}
		}
		format, data := splitVerbatim(body)
		return token{kind: tokValue, value: VerbatimString(format, data)}, true, nil

	case prefixArray, prefixSet, prefixPush:
		length, ok, err := d.readLengthLine()
		if err != nil {
			return fail(withOffset(err, start))
		}
		if !ok {
			return rollback()
		}
		if length < -1 {
			return fail(errDecode(CodeInvalidLength, "negative aggregate length %d", length))
		}
		kind := aggregateKindFor(prefix)
		if length <= 0 {
			return token{kind: tokValue, value: immediateAggregate(kind, length)}, true, nil
		}
		f := &frame{kind: kind, remaining: int(length), children: make([]Value, 0, length)}
		if d.attrsPending {
			f.headerAttrs = d.pendingAttrs
			d.pendingAttrs = nil
			d.attrsPending = false
		}
		return token{kind: tokFramePush, frame: f}, true, nil

	case prefixMap:
		length, ok, err := d.readLengthLine()
		if err != nil {
			return fail(withOffset(err, start))
		}
		if !ok {
			return rollback()
		}
		if length < -1 {
			return fail(errDecode(CodeInvalidLength, "negative map length %d", length))
		}
		if length == -1 {
			return token{kind: tokValue, value: NullMap()}, true, nil
		}
		if length == 0 {
			return token{kind: tokValue, value: Map([]Pair{})}, true, nil
		}
		f := &frame{kind: frameMap, remaining: int(length) * 2, children: make([]Value, 0, length*2)}
		if d.attrsPending {
			f.headerAttrs = d.pendingAttrs
			d.pendingAttrs = nil
			d.attrsPending = false
		}
		return token{kind: tokFramePush, frame: f}, true, nil

	case prefixAttribute:
		length, ok, err := d.readLengthLine()
		if err != nil {
			return fail(withOffset(err, start))
		}
		if !ok {
			return rollback()
		}
		if length < -1 {
			return fail(errDecode(CodeInvalidLength, "negative attribute length %d", length))
		}
		if length <= 0 {
			return token{kind: tokImmediateAttrs, attrs: []Pair{}}, true, nil
		}
		f := &frame{kind: frameAttr, remaining: int(length) * 2, children: make([]Value, 0, length*2)}
		return token{kind: tokFramePush, frame: f}, true, nil

	default:
		return fail(errDecode(CodeUnexpectedPrefix, "unexpected prefix %q", string(prefix)))
	}
}

func aggregateKindFor(prefix byte) frameKind {
	switch prefix {
	case prefixArray:
		return frameArray
	case prefixSet:
		return frameSet
	case prefixPush:
		return framePush
	default:
		return frameArray
	}
}

func immediateAggregate(kind frameKind, length int64) Value {
	switch kind {
	case frameArray:
		if length == -1 {
			return NullArray()
		}
		return Array([]Value{})
	case frameSet:
		if length == -1 {
			return NullSet()
		}
		return Set([]Value{})
	case framePush:
		// A -1-length push decodes as empty, never null.
		return Push([]Value{})
	default:
		return Array([]Value{})
	}
}

// splitCodeMessage splits an error line on its first space into an
// uppercase code token and the remainder. A first token that is not all
// uppercase letters is not a code: code is empty and message holds the
// whole line.
func splitCodeMessage(line []byte) (code, message string) {
	idx := bytes.IndexByte(line, ' ')
	if idx <= 0 {
		return "", string(line)
	}
	for _, c := range line[:idx] {
		if c < 'A' || c > 'Z' {
			return "", string(line)
		}
	}
	return string(line[:idx]), string(line[idx+1:])
}

func splitCodeMessageBytes(b []byte) (code, message string) {
	return splitCodeMessage(b)
}

func splitVerbatim(b []byte) (format string, data []byte) {
	if len(b) >= 4 && b[3] == ':' {
		return string(b[:3]), b[4:]
	}
	return "txt", b
}

func withOffset(err error, offset int) error {
	if ce, ok := err.(*common.Error); ok {
		ce.Offset = offset
	}
	return err
}
