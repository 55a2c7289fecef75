package postgres

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/course-pricing/internal/domain/coupon"
)

// decodeFields parses the JSONB fields column of a coupon.
func decodeFields(data []byte) (coupon.Fields, error) {
	var f coupon.Fields
	if len(data) == 0 {
		return f, nil
	}

	d := jx.DecodeBytes(data)
	if d.Next() == jx.Null {
		return f, nil
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "stackable":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Bool()
			if err != nil {
				return err
			}
			f.Stackable = &v
			return nil
		case "eligibilityCondition":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var c coupon.EligibilityCondition
			if err := d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "type":
					s, err := d.Str()
					c.Type = coupon.ConditionType(s)
					return err
				case "productId":
					s, err := d.Str()
					c.ProductID = s
					return err
				default:
					return d.Skip()
				}
			}); err != nil {
				return err
			}
			f.EligibilityCondition = &c
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return coupon.Fields{}, errors.Wrap(err, "decode coupon fields")
	}
	return f, nil
}

// encodeFields renders coupon fields for the JSONB column.
func encodeFields(f coupon.Fields) []byte {
	var e jx.Encoder
	e.ObjStart()
	if f.Stackable != nil {
		e.FieldStart("stackable")
		e.Bool(*f.Stackable)
	}
	if c := f.EligibilityCondition; c != nil {
		e.FieldStart("eligibilityCondition")
		e.ObjStart()
		e.FieldStart("type")
		e.Str(string(c.Type))
		e.FieldStart("productId")
		e.Str(c.ProductID)
		e.ObjEnd()
	}
	e.ObjEnd()
	return e.Bytes()
}
