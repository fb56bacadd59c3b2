package resp

// Wire prefixes, one per RESP3 type.
const (
	prefixSimpleString = byte('+')
	prefixError         = byte('-')
	prefixInteger       = byte(':')
	prefixBlobString    = byte('$')
	prefixBlobError     = byte('!')
	prefixVerbatim      = byte('=')
	prefixArray         = byte('*')
	prefixMap           = byte('%')
	prefixSet           = byte('~')
	prefixPush          = byte('>')
	prefixAttribute     = byte('|')
	prefixNull          = byte('_')
	prefixBoolean       = byte('#')
	prefixDouble        = byte(',')
	prefixBigNumber     = byte('(')
)

const crlf = "\r\n"

// HelloCommand is the literal handshake frame: *2\r\n$5\r\nHELLO\r\n$1\r\n3\r\n
var HelloCommand = []byte("*2\r\n$5\r\nHELLO\r\n$1\r\n3\r\n")
