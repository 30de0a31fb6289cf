package errors

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	errA := ErrSegmentUnavailable.WithDetail("segment 3 of video vid-A has no inspectable artifact")
	errB := ErrSegmentUnavailable.WithDetail("segment 9 of video vid-B has no inspectable artifact")

	require.NotSame(t, ErrSegmentUnavailable, errA)
	require.NotSame(t, errA, errB)

	assert.Empty(t, ErrSegmentUnavailable.Detail)
	assert.Equal(t, "segment 3 of video vid-A has no inspectable artifact", errA.Detail)
	assert.Equal(t, "segment 9 of video vid-B has no inspectable artifact", errB.Detail)

	assert.Equal(t, CodeSegmentUnavailable, errA.Code)
	assert.Equal(t, ErrSegmentUnavailable.Message, errA.Message)
	assert.Equal(t, ErrSegmentUnavailable.HTTPStatus, errA.HTTPStatus)
}

func TestWithDetailConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	results := make([]*AppError, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = ErrSegmentUnavailable.WithDetail(fmt.Sprintf("segment %d unavailable", i))
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("segment %d unavailable", i), r.Detail)
	}
	assert.Empty(t, ErrSegmentUnavailable.Detail)
}

func TestWithErrorDoesNotMutateSentinel(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	wrapped := ErrLLMCallFailed.WithError(cause)

	require.NotSame(t, ErrLLMCallFailed, wrapped)
	assert.Nil(t, ErrLLMCallFailed.Err)
	assert.Equal(t, cause, wrapped.Unwrap())
	assert.Contains(t, wrapped.Error(), "connection refused")
}
