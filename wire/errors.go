package wire

// Code is the user-facing error code carried in Meta.Code (spec.md §6).
// Grounded on original_source/rpc/errno.h's Code enum; rerror() becomes
// Code.String() below (SPEC_FULL.md §13).
type Code uint32

const (
	CodeOk                Code = 0
	CodeUnknown            Code = 1
	CodeBadArg             Code = 2
	CodeOutOfMemory        Code = 3
	CodeWrongThread        Code = 4
	CodeServiceExists      Code = 5
	CodeServiceMissing     Code = 6
	CodeMissingRequired    Code = 7
	CodeCanceled           Code = 8
	CodeTimeout            Code = 9
	CodeResponseMalformed  Code = 10
	CodeUserDefined        Code = 11
)

func (c Code) String() string {
	switch c {
	case CodeOk:
		return "ok"
	case CodeUnknown:
		return "unknown error"
	case CodeBadArg:
		return "invalid argument"
	case CodeOutOfMemory:
		return "out of memory"
	case CodeWrongThread:
		return "running on the wrong goroutine"
	case CodeServiceExists:
		return "the service is already registered"
	case CodeServiceMissing:
		return "the service isn't registered"
	case CodeMissingRequired:
		return "missing required field"
	case CodeCanceled:
		return "the rpc was canceled"
	case CodeTimeout:
		return "the rpc timed out"
	case CodeResponseMalformed:
		return "the rpc's response could not be decoded"
	case CodeUserDefined:
		return "application-defined error"
	default:
		return "unrecognized error code"
	}
}
