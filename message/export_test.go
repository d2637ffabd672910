package message

import "bufio"

// EncodeValueForTest exposes the internal raw value encoder so package
// message_test can build deliberately malformed wire bytes (e.g. an unknown
// message type tag) that the public Encode API would never produce.
func EncodeValueForTest(w *bufio.Writer, v Value) error {
	return encodeValue(w, v)
}

// DecodeValueForTest exposes the internal raw value decoder for the same
// reason.
func DecodeValueForTest(r *bufio.Reader) (Value, error) {
	return decodeValue(r)
}
