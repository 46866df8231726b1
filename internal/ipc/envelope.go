package ipc

import "encoding/json"

// Response is the envelope every handler invocation produces. A success
// always carries the data key, null included, unless it came from a
// RegisterNoData handler. Error is set only on failure.
type Response struct {
	Success bool
	Data    any
	Error   *ErrorInfo

	noData bool
}

type ErrorInfo struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func Ok(data any) Response {
	return Response{Success: true, Data: data}
}

// Done is a success without data.
func Done() Response {
	return Response{Success: true, noData: true}
}

func Fail(code Code, message string) Response {
	if !code.Valid() {
		code = CodeUnknown
	}
	return Response{Success: false, Error: &ErrorInfo{Code: code, Message: message}}
}

// FailWith builds a failure envelope from a domain error.
func FailWith(err *Error) Response {
	return Fail(err.Code, err.Message)
}

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type bareEnvelope struct {
	Success bool       `json:"success"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	if r.Success && !r.noData {
		return json.Marshal(successEnvelope{Success: true, Data: r.Data})
	}
	return json.Marshal(bareEnvelope{Success: r.Success, Error: r.Error})
}
