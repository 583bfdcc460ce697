package session

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Marshal encodes d as the JSON document stored in sessions.data.
func (d Data) Marshal() []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("coupon")
	e.Str(d.Coupon)
	e.FieldStart("guest_count")
	e.Int(d.GuestCount)
	e.FieldStart("next_item_id")
	e.Int64(d.NextItemID)
	e.FieldStart("guest")
	e.ArrStart()
	s := Session{Data: d}
	for _, l := range s.GuestLines() {
		l.encode(e)
	}
	e.ArrEnd()
	e.ObjEnd()

	out := make([]byte, len(e.Bytes()))
	copy(out, e.Bytes())
	return out
}

// UnmarshalData decodes a stored session document. The guest count is
// recomputed from the lines rather than trusted.
func UnmarshalData(b []byte) (Data, error) {
	d := Data{Guest: make(map[int64]GuestLine)}
	if len(b) == 0 {
		return d, nil
	}
	err := jx.DecodeBytes(b).ObjBytes(func(dec *jx.Decoder, key []byte) error {
		switch string(key) {
		case "coupon":
			v, err := dec.Str()
			if err != nil {
				return err
			}
			d.Coupon = v
		case "next_item_id":
			v, err := dec.Int64()
			if err != nil {
				return err
			}
			d.NextItemID = v
		case "guest":
			return dec.Arr(func(dec *jx.Decoder) error {
				var l GuestLine
				if err := l.decode(dec); err != nil {
					return err
				}
				if l.Quantity > 0 {
					d.Guest[l.ProductID] = l
				}
				if l.ItemID > d.NextItemID {
					d.NextItemID = l.ItemID
				}
				return nil
			})
		default:
			return dec.Skip()
		}
		return nil
	})
	if err != nil {
		return Data{}, errors.Wrap(err, "decode session")
	}
	d.GuestCount = countLines(d.Guest)
	return d, nil
}

func (l GuestLine) encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("item_id")
	e.Int64(l.ItemID)
	e.FieldStart("product_id")
	e.Int64(l.ProductID)
	e.FieldStart("name")
	e.Str(l.Name)
	e.FieldStart("unit_price")
	e.Str(l.UnitPrice.String())
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	if l.Color != "" {
		e.FieldStart("color")
		e.Str(l.Color)
	}
	if l.Size != "" {
		e.FieldStart("size")
		e.Str(l.Size)
	}
	e.FieldStart("added_at")
	e.Str(l.AddedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}

func (l *GuestLine) decode(dec *jx.Decoder) error {
	return dec.ObjBytes(func(dec *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "item_id":
			l.ItemID, err = dec.Int64()
		case "product_id":
			l.ProductID, err = dec.Int64()
		case "name":
			l.Name, err = dec.Str()
		case "unit_price":
			var raw string
			if raw, err = dec.Str(); err == nil {
				l.UnitPrice, err = decimal.NewFromString(raw)
			}
		case "quantity":
			l.Quantity, err = dec.Int()
		case "color":
			l.Color, err = dec.Str()
		case "size":
			l.Size, err = dec.Str()
		case "added_at":
			var raw string
			if raw, err = dec.Str(); err == nil {
				l.AddedAt, err = time.Parse(time.RFC3339Nano, raw)
			}
		default:
			err = dec.Skip()
		}
		return err
	})
}
