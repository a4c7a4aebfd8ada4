package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveMutation(t *testing.T) {
	success := testutil.ToFloat64(MutationCallsTotal.WithLabelValues("remote", "success"))
	failure := testutil.ToFloat64(MutationCallsTotal.WithLabelValues("remote", "failure"))

	ObserveMutation("remote", nil)
	ObserveMutation("remote", errors.New("boom"))
	ObserveMutation("remote", nil)

	assert.Equal(t, success+2, testutil.ToFloat64(MutationCallsTotal.WithLabelValues("remote", "success")))
	assert.Equal(t, failure+1, testutil.ToFloat64(MutationCallsTotal.WithLabelValues("remote", "failure")))
}

func TestWriteTextfile(t *testing.T) {
	RulesTotal.WithLabelValues("Applied").Inc()

	path := filepath.Join(t.TempDir(), "mailrules.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `mailrules_rules_total{state="Applied"}`)
}

func TestWriteTextfile_BadPath(t *testing.T) {
	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "m.prom"))
	assert.Error(t, err)
}
