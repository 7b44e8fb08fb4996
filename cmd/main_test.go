package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func withArgs(t *testing.T, args ...string) {
	saved := os.Args
	os.Args = append([]string{"bindbench"}, args...)
	t.Cleanup(func() { os.Args = saved })
}

func TestRunHelp(t *testing.T) {
	withArgs(t, "--help")
	core, logs := observer.New(zapcore.InfoLevel)

	assert.Equal(t, 0, run(zap.New(core)))
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestRunFailureExitCode(t *testing.T) {
	withArgs(t)
	t.Setenv("BINDBENCH_WORKLOAD_IDENTIFIERS", "0")
	core, logs := observer.New(zapcore.InfoLevel)

	assert.Equal(t, 1, run(zap.New(core)))
	assert.Equal(t, 1, logs.FilterMessage("benchmark failed").Len())
}
