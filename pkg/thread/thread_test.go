package thread

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"os161/pkg/kern/errno"
)

func TestForkRunsEntry(t *testing.T) {
	s := NewScheduler(0, nil)
	var ran atomic.Bool

	th, err := s.Fork(context.Background(), "worker", func(t *Thread) {
		ran.Store(true)
	})
	require.NoError(t, err)
	<-th.Done()

	assert.True(t, ran.Load())
	assert.Equal(t, "worker", th.Name)
	assert.Equal(t, 0, s.Live())
}

func TestExitDoesNotReturn(t *testing.T) {
	s := NewScheduler(0, nil)
	var after atomic.Bool

	th, err := s.Fork(context.Background(), "exiter", func(t *Thread) {
		t.Exit()
		after.Store(true)
	})
	require.NoError(t, err)
	s.Wait()

	<-th.Done()
	assert.False(t, after.Load(), "code after Exit must not run")
}

func TestThreadLimit(t *testing.T) {
	s := NewScheduler(1, nil)
	release := make(chan struct{})

	_, err := s.Fork(context.Background(), "a", func(t *Thread) { <-release })
	require.NoError(t, err)

	_, err = s.Fork(context.Background(), "b", func(t *Thread) {})
	assert.ErrorIs(t, err, errno.ErrNoMemory)

	close(release)
	s.Wait()

	_, err = s.Fork(context.Background(), "c", func(t *Thread) {})
	assert.NoError(t, err)
	s.Wait()
}

func TestEnterForkedProcess(t *testing.T) {
	parent := &Trapframe{V0: 0, A0: 7, EPC: 0x400100}
	var seen *Trapframe
	parent.Resume = func(t *Thread, tf *Trapframe) { seen = tf }

	child := parent.Clone()
	parent.SetResult(42)
	EnterForkedProcess(nil, child)

	require.NotNil(t, seen)
	assert.Equal(t, uint32(0), seen.V0)
	assert.Equal(t, uint32(0), seen.A3)
	assert.Equal(t, uint32(7), seen.A0)
	assert.Equal(t, uint32(0x400104), seen.EPC)
	assert.Equal(t, uint32(42), parent.V0)
	assert.Equal(t, uint32(0x400104), parent.EPC)
}

func TestSetError(t *testing.T) {
	tf := &Trapframe{EPC: 8}
	tf.SetError(int(errno.EBADF))
	assert.Equal(t, uint32(errno.EBADF), tf.V0)
	assert.Equal(t, uint32(1), tf.A3)
	assert.Equal(t, uint32(12), tf.EPC)
}

func TestSetResult64(t *testing.T) {
	tf := &Trapframe{A3: 1}
	tf.SetResult64(0x0000000500000010)
	assert.Equal(t, uint32(5), tf.V0)
	assert.Equal(t, uint32(0x10), tf.V1)
	assert.Equal(t, uint32(0), tf.A3)
	assert.Equal(t, uint32(4), tf.EPC)
}
