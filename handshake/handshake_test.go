//go:build linux

package handshake

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Channels_InitializeOrdering(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- c.WaitInitialize()
	}()

	select {
	case <-done:
		t.Fatal("WaitInitialize returned before SignalInitialize was called")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, c.SignalInitialize())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitInitialize did not unblock after SignalInitialize")
	}
}

func Test_Channels_FinalizeOrdering(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- c.WaitFinalize()
	}()

	select {
	case <-done:
		t.Fatal("WaitFinalize returned before SignalFinalize was called")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, c.SignalFinalize())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitFinalize did not unblock after SignalFinalize")
	}
}

func Test_Channels_SignalIsIdempotentlySafeOnce(t *testing.T) {
	c, err := New()
	require.NoError(t, err)
	require.NoError(t, c.SignalInitialize())
	require.NoError(t, c.WaitInitialize())
	require.NoError(t, c.SignalFinalize())
	require.NoError(t, c.WaitFinalize())
}
