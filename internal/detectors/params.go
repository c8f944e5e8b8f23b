package detectors

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"go.uber.org/multierr"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalHook turns numbers and numeric strings into decimals. Floats are
// formatted by their shortest representation, so 0.1 decodes as exactly 0.1.
func decimalHook(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != decimalType {
		return data, nil
	}
	if d, ok := data.(decimal.Decimal); ok {
		return d, nil
	}
	s, err := cast.ToStringE(data)
	if err != nil {
		return nil, err
	}
	return decimal.NewFromString(s)
}

// decodeParams decodes raw on top of out, which must be a pointer to a
// struct already holding the defaults.
func decodeParams(raw map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(decimalHook),
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// toMap renders params back into the free-form map stored on alerts.
func toMap(params interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	v := reflect.Indirect(reflect.ValueOf(params))
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Tag.Get("mapstructure")
		if name == "" || name == "-" {
			continue
		}
		field := v.Field(i).Interface()
		if d, ok := field.(decimal.Decimal); ok {
			out[name] = d.String()
			continue
		}
		out[name] = field
	}
	return out
}

type check struct {
	ok  bool
	msg string
}

// validate joins every failed check into one error.
func validate(checks ...check) error {
	var err error
	for _, c := range checks {
		if !c.ok {
			err = multierr.Append(err, fmt.Errorf("%s", c.msg))
		}
	}
	return err
}
