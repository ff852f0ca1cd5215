package util

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertList(t *testing.T) {
	got := ConvertList([]int{1, 2, 3}, strconv.Itoa)
	assert.Equal(t, []string{"1", "2", "3"}, got)
	assert.Empty(t, ConvertList(nil, strconv.Itoa))
}

func TestSliceIncludes(t *testing.T) {
	assert.True(t, SliceIncludes([]string{"a", "b"}, "b"))
	assert.False(t, SliceIncludes([]string{"a", "b"}, "c"))
}

func TestPtrVal(t *testing.T) {
	p := Ptr(5)
	assert.Equal(t, 5, *p)
	assert.Equal(t, 5, Val(p))
	assert.Equal(t, "", Val[string](nil))
}

func TestGetCounterVecReusesRegistered(t *testing.T) {
	first, err := GetCounterVec("util_test_counter_total", "test", "kind")
	require.NoError(t, err)
	second, err := GetCounterVec("util_test_counter_total", "test", "kind")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestGetHistogramVecReusesRegistered(t *testing.T) {
	first, err := GetHistogramVec("util_test_seconds", "test", "status")
	require.NoError(t, err)
	second, err := GetHistogramVec("util_test_seconds", "test", "status")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestNewRestyClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewRestyClient(RestyOptions{RetryCount: 3})
	c.SetRetryWaitTime(0).SetRetryMaxWaitTime(0)

	resp, err := c.R().Get(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.EqualValues(t, 3, calls.Load())
}

func TestNewRestyClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewRestyClient(RestyOptions{RetryCount: 3})
	c.SetRetryWaitTime(0).SetRetryMaxWaitTime(0)

	resp, err := c.R().Get(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	assert.EqualValues(t, 1, calls.Load())
}
