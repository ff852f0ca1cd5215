package middleware

import (
	"fmt"
	"net/http"
	"reflect"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
)

// BindAndValidate binds path params, query (for GET/DELETE), body and
// headers into req, then validates it. Validation failures are returned as
// 400 with the validator message.
func BindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return err
	}

	if err := bindHeader(c.Request().Header, req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return nil
}

// bindHeader decode http header to struct by tag `header:"<header_name>"`
// out must be a pointer to a struct
func bindHeader(header http.Header, dst any) error {
	return bindStruct(dst, "header", func(tagValue string) (string, bool) {
		v := header.Get(tagValue)
		return v, v != ""
	})
}

// bindStruct decode to struct by custom tag `tagName:"tagValue"`.
// Fields whose source value is absent keep their current value.
func bindStruct(dst any, tagName string, lookup func(tagValue string) (string, bool)) error {
	ptr := reflect.ValueOf(dst)
	if ptr.Kind() != reflect.Ptr {
		return fmt.Errorf("non-pointer passed to bind")
	}

	indirect := reflect.Indirect(ptr)
	if indirect.Kind() != reflect.Struct {
		return fmt.Errorf("bind target must be a struct, got %s", indirect.Kind())
	}
	structType := indirect.Type()

	for i := 0; i < structType.NumField(); i++ {
		structField := structType.Field(i)
		tagValue := structField.Tag.Get(tagName)
		if tagValue == "-" || tagValue == "" {
			continue
		}

		value, ok := lookup(tagValue)
		if !ok {
			continue
		}
		if err := setField(indirect.Field(i), value); err != nil {
			return fmt.Errorf("cannot parse %s.%s as %s from: %q / %w",
				structType.Name(), structField.Name, structField.Type, value, err)
		}
	}

	return nil
}

func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(value)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := cast.ToUint64E(value)
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}
