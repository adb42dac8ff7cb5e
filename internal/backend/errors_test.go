package backend

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfUnwrapsNestedErrors(t *testing.T) {
	inner := NewError(KindRejected, 422, "VALIDATION_FAILED", "bad payload", nil)
	wrapped := fmt.Errorf("submit attempt: %w", inner)

	assert.Equal(t, KindRejected, KindOf(wrapped))
	assert.True(t, IsRejected(wrapped))
	assert.False(t, IsTransient(wrapped))
}

func TestKindOfDefaultsToTransient(t *testing.T) {
	// 网络边界之外冒出来的未分类错误保守按瞬时处理
	assert.Equal(t, KindTransient, KindOf(errors.New("connection reset")))
	assert.True(t, IsTransient(errors.New("connection reset")))
	assert.False(t, IsTransient(nil))
}

func TestErrorUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := NewError(KindTransient, 0, "", "network attempt failed", cause)

	assert.ErrorIs(t, err, cause)
}

func TestClassifySchemaAbsentCodes(t *testing.T) {
	for _, code := range []string{"PGRST205", "PGRST002", "42P01"} {
		t.Run(code, func(t *testing.T) {
			body := []byte(`{"code":"` + code + `","message":"relation missing"}`)
			err := classify(http.StatusNotFound, body)

			assert.Equal(t, KindSchemaAbsent, err.Kind)
			assert.Equal(t, code, err.Code)
		})
	}
}

func TestClassifyNestedErrorEnvelope(t *testing.T) {
	body := []byte(`{"error":{"code":"PGRST205","message":"schema cache miss"}}`)
	err := classify(http.StatusNotFound, body)

	require.Equal(t, KindSchemaAbsent, err.Kind)
	assert.Equal(t, "schema cache miss", err.Message)
}

func TestClassifyStatusBuckets(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{http.StatusRequestTimeout, KindTransient},
		{http.StatusTooManyRequests, KindTransient},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusBadGateway, KindTransient},
		{http.StatusBadRequest, KindRejected},
		{http.StatusUnprocessableEntity, KindRejected},
		{http.StatusConflict, KindRejected},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			err := classify(tc.status, nil)
			assert.Equal(t, tc.want, err.Kind)
			assert.Equal(t, tc.status, err.StatusCode)
		})
	}
}

func TestClassifyFallsBackToStatusText(t *testing.T) {
	err := classify(http.StatusServiceUnavailable, []byte("not json at all"))

	assert.Equal(t, KindTransient, err.Kind)
	assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), err.Message)
}
