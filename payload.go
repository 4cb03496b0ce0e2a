package lostik

import (
	"encoding/hex"
	"fmt"
)

// MaxPayloadSize is the largest frame the radio transmits, in bytes.
const MaxPayloadSize = 255

// EncodePayload returns the lowercase hex representation of payload, as used
// by "radio tx".
func EncodePayload(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrInvalidParam)
	}

	if len(payload) > MaxPayloadSize {
		return "", fmt.Errorf("%w: payload length %d exceeds maximum of %d bytes", ErrInvalidParam, len(payload), MaxPayloadSize)
	}

	return hex.EncodeToString(payload), nil
}

// DecodePayload parses a hex payload as sent with "radio_rx". Both upper and
// lower case digits are accepted.
func DecodePayload(data string) ([]byte, error) {
	payload, err := hex.DecodeString(data)

	if err != nil {
		return nil, &DeviceError{Code: ErrDecode, Response: data, Err: err}
	}

	return payload, nil
}

// DecodeText interprets payload as ASCII text.
func DecodeText(payload []byte) (string, error) {
	for i, b := range payload {
		if b > 0x7f {
			return "", &DeviceError{
				Code: ErrDecode,
				Err:  fmt.Errorf("non-ASCII byte 0x%02x at offset %d", b, i),
			}
		}
	}

	return string(payload), nil
}
