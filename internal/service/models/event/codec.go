package event

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// The wire format is protobuf; field numbers are documented in events.proto.
// Fields unknown to this reader are skipped on decode, so producers may add
// fields without breaking deployed consumers.
const (
	fieldEventID        = 1
	fieldEventType      = 2
	fieldOrderID        = 3
	fieldTimestamp      = 4
	fieldOrderCreated   = 5
	fieldPublishAttempt = 6

	tsFieldSeconds = 1
	tsFieldNanos   = 2

	ocFieldOrderID  = 1
	ocFieldCustomer = 2
	ocFieldItems    = 3

	custFieldUserID = 1
	custFieldEmail  = 2

	itemFieldSKU      = 1
	itemFieldQuantity = 2
)

// Marshal serializes the event into its protobuf wire encoding.
func (e Event) Marshal() []byte {
	var b []byte

	b = protowire.AppendTag(b, fieldEventID, protowire.BytesType)
	b = protowire.AppendString(b, e.EventID)

	b = protowire.AppendTag(b, fieldEventType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Type))

	b = protowire.AppendTag(b, fieldOrderID, protowire.BytesType)
	b = protowire.AppendString(b, e.OrderID)

	var ts []byte
	ts = protowire.AppendTag(ts, tsFieldSeconds, protowire.VarintType)
	ts = protowire.AppendVarint(ts, uint64(e.Timestamp.Unix()))
	ts = protowire.AppendTag(ts, tsFieldNanos, protowire.VarintType)
	ts = protowire.AppendVarint(ts, uint64(e.Timestamp.Nanosecond()))
	b = protowire.AppendTag(b, fieldTimestamp, protowire.BytesType)
	b = protowire.AppendBytes(b, ts)

	if e.OrderCreated != nil {
		b = protowire.AppendTag(b, fieldOrderCreated, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalOrderCreated(e.OrderCreated))
	}

	if e.PublishAttempt != "" {
		b = protowire.AppendTag(b, fieldPublishAttempt, protowire.BytesType)
		b = protowire.AppendString(b, e.PublishAttempt)
	}

	return b
}

func marshalOrderCreated(oc *OrderCreated) []byte {
	var b []byte

	b = protowire.AppendTag(b, ocFieldOrderID, protowire.BytesType)
	b = protowire.AppendString(b, oc.OrderID)

	var cust []byte
	cust = protowire.AppendTag(cust, custFieldUserID, protowire.BytesType)
	cust = protowire.AppendString(cust, oc.Customer.UserID)
	cust = protowire.AppendTag(cust, custFieldEmail, protowire.BytesType)
	cust = protowire.AppendString(cust, oc.Customer.Email)
	b = protowire.AppendTag(b, ocFieldCustomer, protowire.BytesType)
	b = protowire.AppendBytes(b, cust)

	for _, item := range oc.Items {
		var it []byte
		it = protowire.AppendTag(it, itemFieldSKU, protowire.BytesType)
		it = protowire.AppendString(it, item.SKU)
		it = protowire.AppendTag(it, itemFieldQuantity, protowire.VarintType)
		it = protowire.AppendVarint(it, uint64(item.Quantity))
		b = protowire.AppendTag(b, ocFieldItems, protowire.BytesType)
		b = protowire.AppendBytes(b, it)
	}

	return b
}

// Unmarshal decodes an event from its protobuf wire encoding.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	var tsSeconds, tsNanos int64

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Event{}, fmt.Errorf("failed to decode event tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldEventID:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Event{}, fmt.Errorf("failed to decode event_id: %w", protowire.ParseError(n))
			}
			e.EventID = v
			data = data[n:]
		case fieldEventType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Event{}, fmt.Errorf("failed to decode event_type: %w", protowire.ParseError(n))
			}
			e.Type = Type(v)
			data = data[n:]
		case fieldOrderID:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Event{}, fmt.Errorf("failed to decode order_id: %w", protowire.ParseError(n))
			}
			e.OrderID = v
			data = data[n:]
		case fieldTimestamp:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Event{}, fmt.Errorf("failed to decode timestamp: %w", protowire.ParseError(n))
			}
			var err error
			tsSeconds, tsNanos, err = unmarshalTimestamp(v)
			if err != nil {
				return Event{}, err
			}
			data = data[n:]
		case fieldOrderCreated:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Event{}, fmt.Errorf("failed to decode order_created: %w", protowire.ParseError(n))
			}
			oc, err := unmarshalOrderCreated(v)
			if err != nil {
				return Event{}, err
			}
			e.OrderCreated = oc
			data = data[n:]
		case fieldPublishAttempt:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Event{}, fmt.Errorf("failed to decode publish_attempt: %w", protowire.ParseError(n))
			}
			e.PublishAttempt = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Event{}, fmt.Errorf("failed to skip field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	e.Timestamp = time.Unix(tsSeconds, tsNanos).UTC()

	return e, nil
}

func unmarshalTimestamp(data []byte) (seconds, nanos int64, err error) {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return 0, 0, fmt.Errorf("failed to decode timestamp tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case tsFieldSeconds:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return 0, 0, fmt.Errorf("failed to decode timestamp seconds: %w", protowire.ParseError(n))
			}
			seconds = int64(v)
			data = data[n:]
		case tsFieldNanos:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return 0, 0, fmt.Errorf("failed to decode timestamp nanos: %w", protowire.ParseError(n))
			}
			nanos = int64(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return 0, 0, fmt.Errorf("failed to skip timestamp field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	return seconds, nanos, nil
}

func unmarshalOrderCreated(data []byte) (*OrderCreated, error) {
	oc := &OrderCreated{}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("failed to decode order_created tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case ocFieldOrderID:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return nil, fmt.Errorf("failed to decode order_created.order_id: %w", protowire.ParseError(n))
			}
			oc.OrderID = v
			data = data[n:]
		case ocFieldCustomer:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("failed to decode customer: %w", protowire.ParseError(n))
			}
			if err := unmarshalCustomer(v, oc); err != nil {
				return nil, err
			}
			data = data[n:]
		case ocFieldItems:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("failed to decode item: %w", protowire.ParseError(n))
			}
			item, err := unmarshalItem(v)
			if err != nil {
				return nil, err
			}
			oc.Items = append(oc.Items, item)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("failed to skip order_created field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	return oc, nil
}

func unmarshalCustomer(data []byte, oc *OrderCreated) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("failed to decode customer tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case custFieldUserID:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("failed to decode customer.user_id: %w", protowire.ParseError(n))
			}
			oc.Customer.UserID = v
			data = data[n:]
		case custFieldEmail:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("failed to decode customer.email: %w", protowire.ParseError(n))
			}
			oc.Customer.Email = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("failed to skip customer field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	return nil
}

func unmarshalItem(data []byte) (Item, error) {
	var item Item

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Item{}, fmt.Errorf("failed to decode item tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case itemFieldSKU:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return Item{}, fmt.Errorf("failed to decode item.sku: %w", protowire.ParseError(n))
			}
			item.SKU = v
			data = data[n:]
		case itemFieldQuantity:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Item{}, fmt.Errorf("failed to decode item.quantity: %w", protowire.ParseError(n))
			}
			item.Quantity = int64(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Item{}, fmt.Errorf("failed to skip item field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	return item, nil
}
