package resp

import "bytes"

// readLine scans forward for a CRLF terminator starting at d.pos. ok=false
// means the terminator hasn't arrived yet (NeedMore); the position is left
// untouched. A line reader must refuse a line until \r\n is actually
// present — this never trusts a bare \n.
func (d *Decoder) readLine() ([]byte, bool, error) {
	rest := d.buf[d.pos:]
	idx := bytes.IndexByte(rest, '\n')
	if idx == -1 {
		return nil, false, nil
	}
	if idx == 0 || rest[idx-1] != '\r' {
		return nil, false, errDecode(CodeDecodeError, "line not terminated by CRLF")
	}
	line := rest[:idx-1]
	d.pos += idx + 1
	return line, true, nil
}

// readN returns the next n bytes without interpreting them, advancing pos.
// ok=false (no advance) means fewer than n bytes are currently buffered.
func (d *Decoder) readN(n int) ([]byte, bool) {
	if d.pos+n > len(d.buf) {
		return nil, false
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, true
}

// readCRLF consumes exactly "\r\n". ok=false means not enough bytes are
// buffered yet; a mismatch once enough bytes are present is a decode error.
func (d *Decoder) readCRLF() (bool, error) {
	b, ok := d.readN(2)
	if !ok {
		return false, nil
	}
	if b[0] != '\r' || b[1] != '\n' {
		return false, errDecode(CodeDecodeError, "expected CRLF")
	}
	return true, nil
}

// readLengthLine reads a decimal length header line (after its prefix byte
// has already been consumed by the caller).
func (d *Decoder) readLengthLine() (int64, bool, error) {
	line, ok, err := d.readLine()
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	n, perr := parseInt64(line)
	if perr != nil {
		return 0, false, perr
	}
	return n, true, nil
}

// readBlobBody reads exactly length payload bytes followed by a literal
// CRLF, copying the payload out so it survives buffer reuse. length must
// be >= 0; callers handle the null (-1) case themselves.
func (d *Decoder) readBlobBody(length int64) ([]byte, bool, error) {
	need := int(length) + 2
	if d.pos+need > len(d.buf) {
		return nil, false, nil
	}
	payload := d.buf[d.pos : d.pos+int(length)]
	cr := d.buf[d.pos+int(length)]
	lf := d.buf[d.pos+int(length)+1]
	if cr != '\r' || lf != '\n' {
		return nil, false, errDecode(CodeBlobNotTerminated, "blob not terminated by CRLF")
	}
	out := make([]byte, length)
	copy(out, payload)
	d.pos += need
	return out, true, nil
}
