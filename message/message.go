package message

import (
	"bufio"
	"io"
	"math"
)

// Type tags, the first element of every msgpack-rpc message array.
const (
	TypeRequest      = 0
	TypeResponse     = 1
	TypeNotification = 2
)

// Request is a call that expects exactly one matching Response.
type Request struct {
	ID     uint32
	Method string
	Params []Value
}

// Outcome is the either<value, value> result carried by a Response: exactly
// one of Result, Error is the meaningful side. Use Ok/ErrOutcome to construct it.
type Outcome struct {
	ok     bool
	result Value
	err    Value
}

// Ok builds a successful outcome.
func Ok(result Value) Outcome { return Outcome{ok: true, result: result} }

// ErrOutcome builds a failed outcome.
func ErrOutcome(err Value) Outcome { return Outcome{ok: false, err: err} }

// IsOk reports whether the outcome is the success case.
func (o Outcome) IsOk() bool { return o.ok }

// Result returns the success value and ok=true if the outcome succeeded.
func (o Outcome) Result() (Value, bool) {
	if !o.ok {
		return Value{}, false
	}
	return o.result, true
}

// Error returns the error value and ok=true if the outcome failed.
func (o Outcome) Error() (Value, bool) {
	if o.ok {
		return Value{}, false
	}
	return o.err, true
}

func (o Outcome) Equal(other Outcome) bool {
	if o.ok != other.ok {
		return false
	}
	if o.ok {
		return o.result.Equal(other.result)
	}
	return o.err.Equal(other.err)
}

// Response answers exactly one Request by id.
type Response struct {
	ID      uint32
	Outcome Outcome
}

// Notification is a one-way call: it carries no id and never produces a
// Response.
type Notification struct {
	Method string
	Params []Value
}

// MessageKind distinguishes the three Message alternatives.
type MessageKind int

const (
	KindRequestMsg MessageKind = iota
	KindResponseMsg
	KindNotificationMsg
)

// Message is the tagged union of Request, Response and Notification; Decode
// returns one, and Encode accepts one built via NewRequest/NewResponse/
// NewNotification.
type Message struct {
	kind         MessageKind
	request      Request
	response     Response
	notification Notification
}

// NewRequest wraps a Request as a Message.
func NewRequest(r Request) Message { return Message{kind: KindRequestMsg, request: r} }

// NewResponse wraps a Response as a Message.
func NewResponse(r Response) Message { return Message{kind: KindResponseMsg, response: r} }

// NewNotification wraps a Notification as a Message.
func NewNotification(n Notification) Message {
	return Message{kind: KindNotificationMsg, notification: n}
}

// Kind reports which alternative is held.
func (m Message) Kind() MessageKind { return m.kind }

// AsRequest returns the Request and ok=true if m holds one.
func (m Message) AsRequest() (Request, bool) {
	if m.kind != KindRequestMsg {
		return Request{}, false
	}
	return m.request, true
}

// AsResponse returns the Response and ok=true if m holds one.
func (m Message) AsResponse() (Response, bool) {
	if m.kind != KindResponseMsg {
		return Response{}, false
	}
	return m.response, true
}

// AsNotification returns the Notification and ok=true if m holds one.
func (m Message) AsNotification() (Notification, bool) {
	if m.kind != KindNotificationMsg {
		return Notification{}, false
	}
	return m.notification, true
}

// Equal reports whether m and other encode to the same message.
func (m Message) Equal(other Message) bool {
	if m.kind != other.kind {
		return false
	}
	switch m.kind {
	case KindRequestMsg:
		a, b := m.request, other.request
		if a.ID != b.ID || a.Method != b.Method || len(a.Params) != len(b.Params) {
			return false
		}
		for i := range a.Params {
			if !a.Params[i].Equal(b.Params[i]) {
				return false
			}
		}
		return true
	case KindResponseMsg:
		a, b := m.response, other.response
		return a.ID == b.ID && a.Outcome.Equal(b.Outcome)
	case KindNotificationMsg:
		a, b := m.notification, other.notification
		if a.Method != b.Method || len(a.Params) != len(b.Params) {
			return false
		}
		for i := range a.Params {
			if !a.Params[i].Equal(b.Params[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func paramsValue(params []Value) Value {
	return Array(params...)
}

func idFitsU32(v Value) (uint32, error) {
	u, ok := v.Uint()
	if !ok {
		return 0, malformed("id slot is not an unsigned integer")
	}
	if u > math.MaxUint32 {
		return 0, malformed("id %d does not fit in 32 bits", u)
	}
	return uint32(u), nil
}

// Encode writes m to w as a single msgpack array, per the msgpack-rpc wire
// format (§6 of the spec):
//
//	Request      -> [0, id, method, params]
//	Response     -> [1, id, error, result]
//	Notification -> [2, method, params]
func Encode(w io.Writer, m Message) error {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}

	switch m.kind {
	case KindRequestMsg:
		if err := encodeArrayLen(bw, 4); err != nil {
			return err
		}
		if err := encodeUint(bw, TypeRequest); err != nil {
			return err
		}
		if err := encodeUint(bw, uint64(m.request.ID)); err != nil {
			return err
		}
		if err := encodeString(bw, m.request.Method); err != nil {
			return err
		}
		if err := encodeValue(bw, paramsValue(m.request.Params)); err != nil {
			return err
		}
	case KindResponseMsg:
		if err := encodeArrayLen(bw, 4); err != nil {
			return err
		}
		if err := encodeUint(bw, TypeResponse); err != nil {
			return err
		}
		if err := encodeUint(bw, uint64(m.response.ID)); err != nil {
			return err
		}
		errVal := Nil()
		resultVal := Nil()
		if v, ok := m.response.Outcome.Result(); ok {
			resultVal = v
		}
		if v, ok := m.response.Outcome.Error(); ok {
			errVal = v
		}
		if err := encodeValue(bw, errVal); err != nil {
			return err
		}
		if err := encodeValue(bw, resultVal); err != nil {
			return err
		}
	case KindNotificationMsg:
		if err := encodeArrayLen(bw, 3); err != nil {
			return err
		}
		if err := encodeUint(bw, TypeNotification); err != nil {
			return err
		}
		if err := encodeString(bw, m.notification.Method); err != nil {
			return err
		}
		if err := encodeValue(bw, paramsValue(m.notification.Params)); err != nil {
			return err
		}
	default:
		return malformed("cannot encode message of unknown kind")
	}

	return bw.Flush()
}

// Decode consumes exactly one top-level msgpack value from r and parses it
// as a msgpack-rpc Message. This holds when r implements io.ByteReader (as
// *bufio.Reader does); any other r is wrapped in a new bufio.Reader, which
// may read past the value, and those read-ahead bytes are lost.
func Decode(r io.Reader) (Message, error) {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}

	top, err := decodeValue(br)
	if err != nil {
		return Message{}, err
	}

	items, ok := top.Items()
	if !ok {
		return Message{}, malformed("top-level value is not an array")
	}

	if len(items) == 0 {
		return Message{}, malformed("empty message array")
	}

	typeTag, ok := items[0].Uint()
	if !ok {
		return Message{}, malformed("type tag is not a non-negative integer")
	}

	switch typeTag {
	case TypeRequest:
		if len(items) != 4 {
			return Message{}, malformed("request array must have 4 elements, got %d", len(items))
		}
		id, err := idFitsU32(items[1])
		if err != nil {
			return Message{}, err
		}
		method, ok := items[2].Str()
		if !ok {
			return Message{}, malformed("method slot is not a string")
		}
		params, ok := items[3].Items()
		if !ok {
			return Message{}, malformed("params slot is not an array")
		}
		return NewRequest(Request{ID: id, Method: method, Params: params}), nil

	case TypeResponse:
		if len(items) != 4 {
			return Message{}, malformed("response array must have 4 elements, got %d", len(items))
		}
		id, err := idFitsU32(items[1])
		if err != nil {
			return Message{}, err
		}
		errSlot := items[2]
		resultSlot := items[3]

		var outcome Outcome
		if errSlot.IsNil() {
			outcome = Ok(resultSlot)
		} else {
			// Error wins over result: a response with both slots
			// non-nil is decoded as an error, per the msgpack-rpc
			// convention that error and result are mutually exclusive.
			outcome = ErrOutcome(errSlot)
		}
		return NewResponse(Response{ID: id, Outcome: outcome}), nil

	case TypeNotification:
		if len(items) != 3 {
			return Message{}, malformed("notification array must have 3 elements, got %d", len(items))
		}
		method, ok := items[1].Str()
		if !ok {
			return Message{}, malformed("method slot is not a string")
		}
		params, ok := items[2].Items()
		if !ok {
			return Message{}, malformed("params slot is not an array")
		}
		return NewNotification(Notification{Method: method, Params: params}), nil

	default:
		return Message{}, malformed("unknown message type tag %d", typeTag)
	}
}
