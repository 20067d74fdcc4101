package pid_test

import (
	"os"
	"strconv"
	"testing"

	"codeberg.org/mutker/hostpulse/internal/errors"
	"codeberg.org/mutker/hostpulse/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	f := pid.New(t.TempDir())

	require.NoError(t, f.Acquire())
	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	// acquiring again from the same process is fine
	require.NoError(t, f.Acquire())

	require.NoError(t, f.Release())
	assert.NoFileExists(t, f.Path())
	assert.NoError(t, f.Release())
}

func TestAcquireRefusesLiveProcess(t *testing.T) {
	f := pid.New(t.TempDir())
	// the parent of the test binary is alive for the duration of the test
	require.NoError(t, os.WriteFile(f.Path(), []byte(strconv.Itoa(os.Getppid())), 0o600))

	err := f.Acquire()
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))

	// someone else's file is left alone
	require.NoError(t, f.Release())
	assert.FileExists(t, f.Path())
}

func TestAcquireReplacesStaleFile(t *testing.T) {
	f := pid.New(t.TempDir())
	require.NoError(t, os.WriteFile(f.Path(), []byte("not-a-pid"), 0o600))

	require.NoError(t, f.Acquire())

	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))
}
