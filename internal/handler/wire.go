package handler

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

const maxBodySize = 1 << 20

// badRequestError marks malformed input.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	if len(args) == 0 {
		return &badRequestError{msg: format}
	}
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

// params are the flattened scalar fields of a request. Bodies may be JSON
// objects or urlencoded forms; query parameters fill in missing keys.
type params struct {
	url.Values
	// items holds the objects of a JSON "items" array.
	items []url.Values
}

func readParams(r *http.Request) (*params, error) {
	p := &params{Values: url.Values{}}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case r.Body == nil || r.Body == http.NoBody:
	case ct == "application/json":
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			return nil, errors.Wrap(err, "read body")
		}
		if len(strings.TrimSpace(string(body))) > 0 {
			if err := p.decodeJSON(body); err != nil {
				return nil, badRequest("invalid JSON body")
			}
		}
	default:
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodySize)
		if err := r.ParseForm(); err != nil {
			return nil, badRequest("invalid form body")
		}
		for k, v := range r.PostForm {
			p.Values[k] = v
		}
		if raw := p.Get("items"); raw != "" {
			if err := p.decodeItems(jx.DecodeStr(raw)); err != nil {
				return nil, badRequest("invalid items")
			}
		}
	}

	for k, v := range r.URL.Query() {
		if !p.Has(k) {
			p.Values[k] = v
		}
	}
	return p, nil
}

func (p *params) decodeJSON(body []byte) error {
	return jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) == "items" && d.Next() == jx.Array {
			return p.decodeItems(d)
		}
		v, ok, err := scalar(d)
		if err != nil {
			return err
		}
		if ok {
			p.Set(string(key), v)
		}
		return nil
	})
}

func (p *params) decodeItems(d *jx.Decoder) error {
	return d.Arr(func(d *jx.Decoder) error {
		item := url.Values{}
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			v, ok, err := scalar(d)
			if err != nil {
				return err
			}
			if ok {
				item.Set(string(key), v)
			}
			return nil
		}); err != nil {
			return err
		}
		p.items = append(p.items, item)
		return nil
	})
}

// scalar reads a string, number or boolean as text. Other values are
// skipped and reported as absent.
func scalar(d *jx.Decoder) (string, bool, error) {
	switch d.Next() {
	case jx.String:
		v, err := d.Str()
		return v, err == nil, err
	case jx.Number:
		v, err := d.Num()
		return v.String(), err == nil, err
	case jx.Bool:
		v, err := d.Bool()
		if v {
			return "1", err == nil, err
		}
		return "0", err == nil, err
	default:
		return "", false, d.Skip()
	}
}

func intParam(v url.Values, key string) (int64, error) {
	raw := strings.TrimSpace(v.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequest("%s must be an integer", key)
	}
	return n, nil
}

// maxQuantityParam bounds quantity inputs well below int overflow. The cart
// rejects anything above its own cap anyway.
const maxQuantityParam = 1_000_000

func quantityParam(v url.Values, key string) (int, error) {
	n, err := intParam(v, key)
	if err != nil {
		return 0, err
	}
	if n > maxQuantityParam || n < -maxQuantityParam {
		return 0, badRequest("%s is out of range", key)
	}
	return int(n), nil
}

func decimalParam(v url.Values, key string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(v.Get(key))
	if raw == "" {
		return decimal.Zero, badRequest("%s is required", key)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, badRequest("%s must be a number", key)
	}
	return d, nil
}

func boolParam(v url.Values, key string) bool {
	switch strings.ToLower(strings.TrimSpace(v.Get(key))) {
	case "1", "true", "on", "yes":
		return true
	default:
		return false
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id")
	}
	return id, nil
}

// writeOK writes {"success":true,...} with the fields added by body.
func writeOK(w http.ResponseWriter, body func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	if body != nil {
		body(e)
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(e.Bytes())
}

// money writes d as a JSON number with two decimals.
func money(e *jx.Encoder, field string, d decimal.Decimal) {
	e.FieldStart(field)
	e.Raw([]byte(d.StringFixed(2)))
}

func intField(e *jx.Encoder, field string, v int) {
	e.FieldStart(field)
	e.Int(v)
}

func strField(e *jx.Encoder, field, v string) {
	e.FieldStart(field)
	e.Str(v)
}

func boolField(e *jx.Encoder, field string, v bool) {
	e.FieldStart(field)
	e.Bool(v)
}
