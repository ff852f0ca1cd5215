package middleware

import (
	"fmt"
	"net/http"
	"reflect"
	"runtime"

	"github.com/labstack/echo/v4"
)

// WrapHandler adapts a typed handler to echo. f must look like
//
//	func(echo.Context, Req) (T, error)  // 200 with T in the envelope
//	func(echo.Context, Req) error       // 204 unless f wrote a response
//
// Req is a struct bound and validated with BindAndValidate. Returning a
// *Response as T overrides the envelope and status.
func WrapHandler(f any) echo.HandlerFunc {
	handler, err := wrapHandler(f)
	if err != nil {
		panic(err)
	}

	return handler
}

var (
	ctxInterface   = reflect.TypeOf((*echo.Context)(nil)).Elem()
	errorInterface = reflect.TypeOf((*error)(nil)).Elem()
)

func wrapHandler(f any) (echo.HandlerFunc, error) {
	fTyp := reflect.TypeOf(f)
	fVal := reflect.ValueOf(f)

	if fVal.Kind() != reflect.Func {
		return nil, fmt.Errorf("invalid function passed to wrap handler: %v", fVal)
	}
	fName := runtime.FuncForPC(fVal.Pointer()).Name()

	if numIn := fTyp.NumIn(); numIn != 2 {
		return nil, fmt.Errorf("[%s] invalid function arguments length: %d", fName, numIn)
	}
	if !fTyp.In(0).Implements(ctxInterface) {
		return nil, fmt.Errorf("[%s] first argument must has type echo.Context", fName)
	}
	if kind := fTyp.In(1).Kind(); kind != reflect.Struct {
		return nil, fmt.Errorf("[%s] second argument must has type struct: %v", fName, kind)
	}

	numOut := fTyp.NumOut()
	if numOut < 1 || numOut > 2 {
		return nil, fmt.Errorf("[%s] invalid function returns length: %d", fName, numOut)
	}
	errorIndex := numOut - 1
	if last := fTyp.Out(errorIndex); !last.Implements(errorInterface) {
		return nil, fmt.Errorf("[%s] last return argument must has type error: %v", fName, last)
	}

	reqType := fTyp.In(1)

	handler := func(c echo.Context) error {
		req := reflect.New(reqType)
		if err := BindAndValidate(c, req.Interface()); err != nil {
			return err
		}

		res := fVal.Call([]reflect.Value{reflect.ValueOf(c), req.Elem()})
		if errVal := res[errorIndex]; !errVal.IsNil() {
			err, ok := errVal.Interface().(error)
			if !ok {
				return fmt.Errorf("could not cast error index: %+v", errVal.Interface())
			}
			return err
		}

		if c.Response().Committed {
			return nil
		}
		if numOut == 1 {
			return c.NoContent(http.StatusNoContent)
		}

		data := res[0].Interface()
		resp := &Response{
			Status:  http.StatusOK,
			Success: true,
			Data:    data,
		}
		if v, ok := data.(*Response); ok && v != nil {
			resp = v
		}
		return c.JSON(resp.Status, resp)
	}

	return handler, nil
}
