package parsim

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/inference-sim/parsim/sim"
)

// Wire layout of a TagEvent packet, protobuf wire format:
//
//	1: arrival time (sint64)   2: scheduling priority (sint64)
//	3: kind (sint64)           4: destination module (sint64)
//	5: destination gate (sint64)  6: payload (bytes)
//
// The source partition is carried by the packet, not the payload.
const (
	fieldTime     protowire.Number = 1
	fieldPriority protowire.Number = 2
	fieldKind     protowire.Number = 3
	fieldModule   protowire.Number = 4
	fieldGate     protowire.Number = 5
	fieldPayload  protowire.Number = 6
)

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func encodeEvent(ev *sim.Event) []byte {
	b := make([]byte, 0, 32+len(ev.Payload()))
	b = appendSint(b, fieldTime, int64(ev.ArrivalTime()))
	b = appendSint(b, fieldPriority, int64(ev.SchedulingPriority()))
	b = appendSint(b, fieldKind, int64(ev.Kind()))
	b = appendSint(b, fieldModule, int64(ev.DestModule()))
	b = appendSint(b, fieldGate, int64(ev.DestGate()))
	if len(ev.Payload()) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, ev.Payload())
	}
	return b
}

// decodeEvent rebuilds an event. Unknown fields are skipped.
func decodeEvent(b []byte) (*sim.Event, error) {
	var (
		t                     int64
		haveTime              bool
		prio, kind, mod, gate int64
		payload               []byte
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("decoding event: %w", protowire.ParseError(n))
		}
		b = b[n:]

		if typ == protowire.VarintType && num >= fieldTime && num <= fieldGate {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("decoding event field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			x := protowire.DecodeZigZag(v)
			switch num {
			case fieldTime:
				t, haveTime = x, true
			case fieldPriority:
				prio = x
			case fieldKind:
				kind = x
			case fieldModule:
				mod = x
			case fieldGate:
				gate = x
			}
			continue
		}
		if typ == protowire.BytesType && num == fieldPayload {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("decoding event payload: %w", protowire.ParseError(n))
			}
			b = b[n:]
			payload = append([]byte(nil), v...)
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, fmt.Errorf("skipping event field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	if !haveTime {
		return nil, fmt.Errorf("decoding event: missing arrival time")
	}
	ev := sim.NewEvent(sim.SimTime(t), int(prio), int(kind), payload).WithTarget(int(mod), int(gate))
	return ev, nil
}
