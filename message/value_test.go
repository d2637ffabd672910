package message_test

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/msgpack-rpc/go-msgpack-rpc/message"
)

func TestValueRoundTripAllKinds(t *testing.T) {
	cases := []message.Value{
		message.Nil(),
		message.Bool(true),
		message.Bool(false),
		message.Int(-1),
		message.Int(-129),
		message.Int(-70000),
		message.Int(-5000000000),
		message.Uint(0),
		message.Uint(200),
		message.Uint(70000),
		message.Uint(5000000000),
		message.Float(3.5),
		message.String(""),
		message.String("hello"),
		message.Binary([]byte{1, 2, 3}),
		message.Array(message.Int(1), message.String("x")),
		message.Map(message.MapEntry{Key: message.String("a"), Value: message.Int(1)}),
		message.Extension(5, []byte{0xde, 0xad, 0xbe, 0xef}),
	}

	for _, v := range cases {
		t.Run(v.String(), func(t *testing.T) {
			var buf bytes.Buffer
			bw := bufio.NewWriter(&buf)
			if err := message.EncodeValueForTest(bw, v); err != nil {
				t.Fatal(err)
			}
			if err := bw.Flush(); err != nil {
				t.Fatal(err)
			}

			got, err := message.DecodeValueForTest(bufio.NewReader(bytes.NewReader(buf.Bytes())))
			if err != nil {
				t.Fatal(err)
			}
			if !v.Equal(got) {
				t.Fatalf("round trip mismatch: %v != %v", v, got)
			}
		})
	}
}

func TestValueAccessorsRejectWrongKind(t *testing.T) {
	v := message.String("x")
	if _, ok := v.Int(); ok {
		t.Fatal("expected Int() to fail on a string value")
	}
	if _, ok := v.Bool(); ok {
		t.Fatal("expected Bool() to fail on a string value")
	}
}

func TestUintAcceptsNonNegativeInt(t *testing.T) {
	v := message.Int(5)
	u, ok := v.Uint()
	if !ok || u != 5 {
		t.Fatalf("expected Uint() to accept a non-negative Int, got %v, %v", u, ok)
	}
}
