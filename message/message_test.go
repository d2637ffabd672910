package message_test

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/msgpack-rpc/go-msgpack-rpc/message"
)

func assertEqual(t *testing.T, expected, actual any) {
	t.Helper()
	if expected != actual {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

func requireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func roundTrip(t *testing.T, m message.Message) message.Message {
	t.Helper()
	var buf bytes.Buffer
	requireNoError(t, message.Encode(&buf, m))
	got, err := message.Decode(bufio.NewReader(&buf))
	requireNoError(t, err)
	return got
}

func TestRoundTripRequest(t *testing.T) {
	req := message.NewRequest(message.Request{
		ID:     0,
		Method: "echo",
		Params: []message.Value{message.String("hello world!")},
	})

	got := roundTrip(t, req)
	if !req.Equal(got) {
		t.Fatalf("round trip mismatch: %v != %v", req, got)
	}
}

func TestRoundTripResponseOk(t *testing.T) {
	resp := message.NewResponse(message.Response{
		ID:      0,
		Outcome: message.Ok(message.String("test")),
	})

	got := roundTrip(t, resp)
	if !resp.Equal(got) {
		t.Fatalf("round trip mismatch: %v != %v", resp, got)
	}
}

func TestRoundTripResponseErr(t *testing.T) {
	resp := message.NewResponse(message.Response{
		ID:      7,
		Outcome: message.ErrOutcome(message.String("nope")),
	})

	var buf bytes.Buffer
	requireNoError(t, message.Encode(&buf, resp))

	// Encoded array is [1, 7, "nope", nil].
	got, err := message.Decode(bufio.NewReader(bytes.NewReader(buf.Bytes())))
	requireNoError(t, err)
	if !resp.Equal(got) {
		t.Fatalf("round trip mismatch: %v != %v", resp, got)
	}
}

func TestRoundTripNotification(t *testing.T) {
	n := message.NewNotification(message.Notification{
		Method: "ping",
		Params: []message.Value{message.String("hi")},
	})

	got := roundTrip(t, n)
	if !n.Equal(got) {
		t.Fatalf("round trip mismatch: %v != %v", n, got)
	}
}

func TestResponseBothSlotsNonNil_ErrorWins(t *testing.T) {
	// Hand-build the wire bytes for [1, 3, "boom", "should be ignored"].
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	raw := message.Array(
		message.Uint(1),
		message.Uint(3),
		message.String("boom"),
		message.String("should be ignored"),
	)
	requireNoError(t, encodeRaw(bw, raw))
	requireNoError(t, bw.Flush())

	got, err := message.Decode(bufio.NewReader(bytes.NewReader(buf.Bytes())))
	requireNoError(t, err)

	resp, ok := got.AsResponse()
	if !ok {
		t.Fatalf("expected a response, got %v", got)
	}
	assertEqual(t, uint32(3), resp.ID)
	errVal, ok := resp.Outcome.Error()
	if !ok {
		t.Fatalf("expected outcome to be an error")
	}
	s, ok := errVal.Str()
	if !ok || s != "boom" {
		t.Fatalf("expected error %q, got %v", "boom", errVal)
	}
}

func TestDecodeMalformedUnknownTypeTag(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	raw := message.Array(message.Uint(3), message.Uint(0), message.String("x"), message.Array())
	requireNoError(t, encodeRaw(bw, raw))
	requireNoError(t, bw.Flush())

	_, err := message.Decode(bufio.NewReader(bytes.NewReader(buf.Bytes())))
	if err == nil {
		t.Fatal("expected a decode error")
	}
	var codecErr *message.CodecError
	if !asCodecError(err, &codecErr) {
		t.Fatalf("expected a *message.CodecError, got %T: %v", err, err)
	}
	assertEqual(t, message.Malformed, codecErr.Kind)
}

func TestDecodeTruncated(t *testing.T) {
	_, err := message.Decode(bufio.NewReader(bytes.NewReader(nil)))
	if err == nil {
		t.Fatal("expected a decode error")
	}
	var codecErr *message.CodecError
	if !asCodecError(err, &codecErr) {
		t.Fatalf("expected a *message.CodecError, got %T: %v", err, err)
	}
	assertEqual(t, message.Truncated, codecErr.Kind)
}

func TestDecodeNextMessageStartsAtNextByte(t *testing.T) {
	var buf bytes.Buffer
	first := message.NewNotification(message.Notification{Method: "a", Params: nil})
	second := message.NewNotification(message.Notification{Method: "b", Params: nil})
	requireNoError(t, message.Encode(&buf, first))
	requireNoError(t, message.Encode(&buf, second))

	r := bufio.NewReader(bytes.NewReader(buf.Bytes()))
	got1, err := message.Decode(r)
	requireNoError(t, err)
	got2, err := message.Decode(r)
	requireNoError(t, err)

	if !first.Equal(got1) || !second.Equal(got2) {
		t.Fatalf("decoded messages out of sync: %v, %v", got1, got2)
	}
}

// encodeRaw and asCodecError are small test-only helpers that reach past the
// public API to build deliberately unusual wire bytes and to unwrap codec
// errors; they live here rather than in the package itself because no
// production code needs them.
func encodeRaw(w *bufio.Writer, v message.Value) error {
	return message.EncodeValueForTest(w, v)
}

func asCodecError(err error, target **message.CodecError) bool {
	ce, ok := err.(*message.CodecError)
	if !ok {
		return false
	}
	*target = ce
	return true
}
