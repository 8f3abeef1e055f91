package encoder

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSweeper_InvalidSchedule(t *testing.T) {
	enc := New(Config{TempDir: t.TempDir()}, quietLogger())
	_, err := NewSweeper(enc, "every now and then", time.Hour, quietLogger())
	assert.Error(t, err)
}

func TestSweeper_RunNow(t *testing.T) {
	tmp := t.TempDir()
	stale := filepath.Join(tmp, jobDirPrefix+"old")
	require.NoError(t, os.Mkdir(stale, 0o700))
	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	enc := New(Config{TempDir: tmp}, quietLogger())
	s, err := NewSweeper(enc, "", time.Hour, quietLogger())
	require.NoError(t, err)

	s.Start()
	defer s.Stop(context.Background())

	s.RunNow()
	assert.NoDirExists(t, stale)
}
