package driver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/replbridge/replbridge/driver"
)

func TestExecRunnerCapturesOutput(t *testing.T) {
	runner := &driver.ExecRunner{Logger: zap.NewNop()}

	res, err := runner.Run(context.Background(), "sh", "-c", "echo out; echo err >&2")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.True(t, res.Ok())
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestExecRunnerNonZeroExitIsNotAnError(t *testing.T) {
	runner := &driver.ExecRunner{}

	res, err := runner.Run(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Ok())
	assert.Equal(t, "broken", res.Output())
}

func TestExecRunnerMissingBinary(t *testing.T) {
	runner := &driver.ExecRunner{}

	_, err := runner.Run(context.Background(), "definitely-not-a-real-binary-name")
	assert.Error(t, err)
}
