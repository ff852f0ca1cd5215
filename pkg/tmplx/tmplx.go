// Package tmplx renders one-line text templates with a small set of helpers
// for formatting chat records.
package tmplx

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

var (
	ErrRenderTemplate = errors.New("tmplx: render error")
	ErrParseTemplate  = errors.New("tmplx: parse error")
)

type Template struct {
	tmpl *template.Template
}

type Options struct {
	validate ValidateFunc
	testData any
	funcs    template.FuncMap
}

type Option func(*Options) error

type ValidateFunc func(*bytes.Buffer) error

func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		"quote":     quoteFunc,
		"default":   defaultFunc,
		"json":      jsonFunc,
		"hasSuffix": hasSuffix,
		"hasPrefix": hasPrefix,
		"jsonGet":   jsonGet,
		"clock":     clockFunc,
		"trunc":     truncFunc,
	}
}

// WithTemplateFunc adds a single custom template function
func WithTemplateFunc(name string, fn any) Option {
	return func(t *Options) error {
		if name == "" {
			return fmt.Errorf("%w: empty function name", ErrParseTemplate)
		}
		t.funcs[name] = fn
		return nil
	}
}

// WithValidate renders testData once at parse time and passes the output
// to validateFn.
func WithValidate(testData any, validateFn ValidateFunc) Option {
	return func(t *Options) error {
		t.validate = validateFn
		t.testData = testData
		return nil
	}
}

func MustParse(name string, text string, opts ...Option) *Template {
	t, err := Parse(name, text, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func Parse(name string, text string, args ...Option) (*Template, error) {
	opts := &Options{
		funcs: defaultFuncs(),
	}
	for _, arg := range args {
		if err := arg(opts); err != nil {
			return nil, err
		}
	}

	tmpl, err := template.New(name).
		Option("missingkey=zero").
		Funcs(opts.funcs).
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseTemplate, err)
	}

	t := &Template{
		tmpl: tmpl,
	}
	if opts.validate != nil {
		if err := t.validate(opts.testData, opts.validate); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func (t *Template) validate(data any, validate ValidateFunc) error {
	buf, err := t.Render(data)
	if err != nil {
		return err
	}
	if err := validate(buf); err != nil {
		return fmt.Errorf("validate template: %w", err)
	}
	return nil
}

func (t *Template) Render(data any) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	if err := t.tmpl.Execute(buf, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRenderTemplate, err)
	}
	return buf, nil
}

// RenderLine renders data and strips trailing newlines.
func (t *Template) RenderLine(data any) (string, error) {
	buf, err := t.Render(data)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\r\n"), nil
}

func hasSuffix(a, b any) bool {
	return strings.HasSuffix(cast.ToString(a), cast.ToString(b))
}

func hasPrefix(a, b any) bool {
	return strings.HasPrefix(cast.ToString(a), cast.ToString(b))
}

func quoteFunc(s string) (string, error) {
	return jsonFunc(s)
}

func defaultFunc(def any, value any) any {
	if value != nil && value != "" {
		return value
	}
	return def
}

func jsonFunc(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func jsonGet(path string, raw string) string {
	return gjson.Get(raw, path).String()
}

// clockFunc formats a time as local wall-clock HH:MM:SS. Zero and nil
// times render empty.
func clockFunc(v any) string {
	var ts time.Time
	switch t := v.(type) {
	case time.Time:
		ts = t
	case *time.Time:
		if t == nil {
			return ""
		}
		ts = *t
	default:
		var err error
		if ts, err = cast.ToTimeE(v); err != nil {
			return ""
		}
	}
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format("15:04:05")
}

// truncFunc shortens s to at most n runes, marking the cut with "…".
func truncFunc(n int, s string) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
