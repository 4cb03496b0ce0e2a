package lostik

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		line     string
		expected Response
	}{
		{"ok", Response{Type: ResponseOk, Raw: "ok"}},
		{"ok\r\n", Response{Type: ResponseOk, Raw: "ok"}},
		{"busy", Response{Type: ResponseBusy, Raw: "busy"}},
		{"invalid_param", Response{Type: ResponseInvalidParam, Raw: "invalid_param"}},
		{"radio_err", Response{Type: ResponseRadioError, Raw: "radio_err"}},
		{"radio_tx_ok", Response{Type: ResponseRadioTxOk, Raw: "radio_tx_ok"}},
		{"radio_rx  50696E6721", Response{Type: ResponseRadioRx, Data: "50696E6721", Raw: "radio_rx  50696E6721"}},
		{"4294967245", Response{Type: ResponseNumericValue, Value: 4294967245, Raw: "4294967245"}},
		{"-128", Response{Type: ResponseNumericValue, Value: -128, Raw: "-128"}},
		{"lora", Response{Type: ResponseUnrecognized, Raw: "lora"}},
		{"radio_rx", Response{Type: ResponseUnrecognized, Raw: "radio_rx"}},
		{"", Response{Type: ResponseUnrecognized}},
	}

	for _, test := range tests {
		t.Run(test.line, func(t *testing.T) {
			assert.Equal(t, test.expected, ParseResponse(test.line))
		})
	}
}

func TestResponseAsync(t *testing.T) {
	assert.True(t, ParseResponse("radio_err").Async())
	assert.True(t, ParseResponse("radio_tx_ok").Async())
	assert.True(t, ParseResponse("radio_rx 00").Async())
	assert.False(t, ParseResponse("ok").Async())
	assert.False(t, ParseResponse("busy").Async())
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "mac pause", cmdMacPause.String())
	assert.Equal(t, "radio rx 0", cmdRadioRx.String())
	assert.Equal(t, "radio set sf sf12", Command{Verb: "radio set", Arg: "sf sf12"}.String())
}
