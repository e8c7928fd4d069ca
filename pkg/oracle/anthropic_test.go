package oracle

import (
	"context"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
)

func TestDisabledOracleReportsNotInitialized(t *testing.T) {
	o := NewAnthropic("", "some-model")
	reply := o.Generate(context.Background(), Request{AgentName: "Hao Wang", Input: "hello"})
	assert.Equal(t, ErrNotInitialized, reply)
}

func TestEncodeErrorRateLimit(t *testing.T) {
	err := &anthropic.Error{StatusCode: 429}
	assert.Equal(t,
		"(Lynda Carney is experiencing high call volume - Rate Limit)",
		encodeError("Lynda Carney", err))
}

func TestEncodeErrorAPIStatus(t *testing.T) {
	err := &anthropic.Error{StatusCode: 503}
	assert.Equal(t,
		"(Paul Kahn experiencing connection difficulties - API Error: 503)",
		encodeError("Paul Kahn", err))
}

func TestEncodeErrorTimeout(t *testing.T) {
	assert.Equal(t,
		"(Hao Wang connection timed out)",
		encodeError("Hao Wang", context.DeadlineExceeded))
}

func TestEncodeErrorUnexpected(t *testing.T) {
	reply := encodeError("CEO", errors.New("boom"))
	assert.Contains(t, reply, "CEO experienced an unexpected connection error")
}
