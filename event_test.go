package quicklistener

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "data", EventData.String())
	assert.Equal(t, "error", EventError.String())
	assert.Equal(t, "done", EventDone.String())
	assert.Equal(t, "unknown", EventType(9).String())
}

func TestNewEvent_Classification(t *testing.T) {
	boom := errors.New("boom")

	evt, err := newEvent("hello", DefaultClassifier)
	require.NoError(t, err)
	assert.Equal(t, EventData, evt.Type)
	assert.Equal(t, "hello", evt.Payload)

	evt, err = newEvent(boom, DefaultClassifier)
	require.NoError(t, err)
	assert.Equal(t, EventError, evt.Type)
	assert.Same(t, boom, evt.Err)
	assert.Nil(t, evt.Payload)

	evt, err = newEvent(nil, DefaultClassifier)
	require.NoError(t, err)
	assert.Equal(t, EventData, evt.Type)
	assert.Nil(t, evt.Payload)
}

func TestNewEvent_Overrides(t *testing.T) {
	boom := errors.New("boom")

	evt, err := newEvent(AsData(boom), DefaultClassifier)
	require.NoError(t, err)
	assert.Equal(t, EventData, evt.Type)
	assert.Same(t, boom, evt.Payload)

	evt, err = newEvent(AsError(boom), DefaultClassifier)
	require.NoError(t, err)
	assert.Equal(t, EventError, evt.Type)
	assert.Same(t, boom, evt.Err)

	evt, err = newEvent(AsDone(), DefaultClassifier)
	require.NoError(t, err)
	assert.Equal(t, EventDone, evt.Type)

	failing := func(any) (EventType, error) { return 0, errors.New("unused") }
	evt, err = newEvent(AsData(1), failing)
	require.NoError(t, err, "强制类型不经过分类器")
	assert.Equal(t, 1, evt.Payload)
}

func TestNewEvent_ClassifierFailures(t *testing.T) {
	cause := errors.New("cannot classify")

	_, err := newEvent(1, func(any) (EventType, error) { return 0, cause })
	var cerr *ClassificationError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, cerr.Value)

	_, err = newEvent(1, func(any) (EventType, error) { panic("bad classifier") })
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "bad classifier")

	_, err = newEvent(1, func(any) (EventType, error) { return EventDone, nil })
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, errBadClassification)
}

func TestNewEvent_CustomErrorClassification(t *testing.T) {
	// 非 error 值被分类为 Error 时包装为 error
	evt, err := newEvent("failure", func(any) (EventType, error) { return EventError, nil })
	require.NoError(t, err)
	assert.Equal(t, EventError, evt.Type)
	assert.EqualError(t, evt.Err, "failure")
}
