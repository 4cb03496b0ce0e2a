package lostik

import (
	"strconv"
	"strings"
)

// Command is a single request line for the device. It is written as
// "<verb> <arg>\r\n".
type Command struct {
	Verb string
	Arg  string
}

// String returns the command without line terminator.
func (c Command) String() string {
	if c.Arg == "" {
		return c.Verb
	}

	return c.Verb + " " + c.Arg
}

// Commands used by the radio facade.
var (
	cmdMacPause     = Command{Verb: "mac pause"}
	cmdSysGetVer    = Command{Verb: "sys get ver"}
	cmdRadioRx      = Command{Verb: "radio rx", Arg: "0"}
	cmdRadioRxStop  = Command{Verb: "radio rxstop"}
	cmdRadioGetRSSI = Command{Verb: "radio get", Arg: "rssi"}
	cmdRadioGetSNR  = Command{Verb: "radio get", Arg: "snr"}
)

// ResponseType indicates the decoded outcome of a response line.
type ResponseType int

// The different response types.
const (
	ResponseUnrecognized ResponseType = iota
	ResponseOk
	ResponseNumericValue
	ResponseBusy
	ResponseRadioError
	ResponseRadioRx
	ResponseRadioTxOk
	ResponseInvalidParam
)

var responseTypeNames = map[ResponseType]string{
	ResponseUnrecognized: "unrecognized",
	ResponseOk:           "ok",
	ResponseNumericValue: "numeric",
	ResponseBusy:         "busy",
	ResponseRadioError:   "radio_err",
	ResponseRadioRx:      "radio_rx",
	ResponseRadioTxOk:    "radio_tx_ok",
	ResponseInvalidParam: "invalid_param",
}

func (t ResponseType) String() string {
	if name, ok := responseTypeNames[t]; ok {
		return name
	}

	return "unknown"
}

// Device keywords that map one-to-one on a response type.
var keywords = map[string]ResponseType{
	"ok":            ResponseOk,
	"busy":          ResponseBusy,
	"radio_err":     ResponseRadioError,
	"radio_tx_ok":   ResponseRadioTxOk,
	"invalid_param": ResponseInvalidParam,
}

// Response contains a parsed representation of a response line.
type Response struct {
	Type ResponseType

	// Value is set for ResponseNumericValue.
	Value int64

	// Data is the hex payload of a ResponseRadioRx, as sent by the device.
	Data string

	// Raw is the line as received, without line terminator.
	Raw string
}

// Async reports whether the response completes a receive or transmit.
func (r Response) Async() bool {
	return r.Type == ResponseRadioRx || r.Type == ResponseRadioError || r.Type == ResponseRadioTxOk
}

// ParseResponse decodes a single response line.
func ParseResponse(line string) Response {
	line = strings.TrimRight(line, "\r\n")
	response := Response{Raw: line}

	if t, ok := keywords[line]; ok {
		response.Type = t
		return response
	}

	fields := strings.Fields(line)

	if len(fields) == 2 && fields[0] == "radio_rx" {
		response.Type = ResponseRadioRx
		response.Data = fields[1]
		return response
	}

	if value, err := strconv.ParseInt(line, 10, 64); err == nil {
		response.Type = ResponseNumericValue
		response.Value = value
		return response
	}

	response.Type = ResponseUnrecognized

	return response
}
