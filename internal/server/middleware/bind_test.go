package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindHeader(t *testing.T) {
	type normalCase struct {
		Origin    string `header:"origin"`
		UserAgent string `header:"user-agent"`

		Non   string `header:"-"`
		Empty bool
	}

	type complexCase struct {
		Nine              int64   `header:"nine"`
		ThousandAndSeven  uint64  `header:"thousand-and-seven"`
		NegativeThirtyTwo int64   `header:"negative-thirty-two"`
		HundredPointSix   float32 `header:"hundred-point-six"`
		Typing            bool    `header:"typing"`
	}

	tests := []struct {
		name    string
		header  map[string]string
		out     any
		want    any
		wantErr string
	}{
		{
			name: "normal bind header",
			header: map[string]string{
				"origin":     "http://localhost:5173",
				"user-agent": "campaign-ui",
				"non":        "non",
				"empty":      "empty",
			},
			out: new(normalCase),
			want: &normalCase{
				Origin:    "http://localhost:5173",
				UserAgent: "campaign-ui",
			},
		},
		{
			name: "complex bind header",
			header: map[string]string{
				"nine":                "9",
				"thousand-and-seven":  "1007",
				"negative-thirty-two": "-32",
				"hundred-point-six":   "100.6",
				"typing":              "true",
			},
			out: new(complexCase),
			want: &complexCase{
				Nine:              9,
				ThousandAndSeven:  1007,
				NegativeThirtyTwo: -32,
				HundredPointSix:   100.6,
				Typing:            true,
			},
		},
		{
			name:   "missing headers keep zero values",
			header: map[string]string{},
			out:    new(complexCase),
			want:   &complexCase{},
		},
		{
			name:    "wrong type",
			header:  map[string]string{"typing": "not boolean"},
			out:     new(complexCase),
			want:    &complexCase{},
			wantErr: "complexCase.Typing",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			for k, v := range tt.header {
				header.Set(k, v)
			}
			err := bindHeader(header, tt.out)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, tt.out)
		})
	}
}

func TestBindHeaderRejectsNonPointer(t *testing.T) {
	type target struct {
		A string `header:"a"`
	}
	assert.Error(t, bindHeader(http.Header{}, target{}))
}

func TestBindAndValidate(t *testing.T) {
	type sendRequest struct {
		ChannelID string `param:"channel_id" validate:"required"`
		Content   string `json:"content" validate:"required"`
		Origin    string `header:"origin"`
	}

	e := echo.New()
	e.Validator = NewValidator()

	newContext := func(body string) echo.Context {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/channels/c1/messages", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		req.Header.Set("Origin", "http://localhost:5173")
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetParamNames("channel_id")
		c.SetParamValues("c1")
		return c
	}

	var req sendRequest
	require.NoError(t, BindAndValidate(newContext(`{"content":"hello"}`), &req))
	assert.Equal(t, sendRequest{ChannelID: "c1", Content: "hello", Origin: "http://localhost:5173"}, req)

	err := BindAndValidate(newContext(`{}`), &sendRequest{})
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Contains(t, he.Message, "content")
}
