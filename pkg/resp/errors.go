package resp

import (
	"fmt"

	"github.com/maxubrq/redisX/pkg/common"
)

// Code re-exports the protocol-layer codes relevant to the decoder, so
// callers of this package don't need to import pkg/common directly just to
// compare errors.
type Code = common.Code

const (
	CodeDecodeError       = common.CodeDecodeError
	CodeUnexpectedPrefix  = common.CodeUnexpectedPrefix
	CodeBlobNotTerminated = common.CodeBlobNotTerminated
	CodeInvalidLength     = common.CodeInvalidLength
	CodeInvalidNumeric    = common.CodeInvalidNumeric
	CodeInvalidBoolean    = common.CodeInvalidBoolean
)

// errDecode builds an offset-less decode error for use by the pure parsing
// helpers in numeric.go, which don't know the buffer position; the Decoder
// fills in Offset before surfacing it through onError.
func errDecode(code Code, format string, args ...any) *common.Error {
	return &common.Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
