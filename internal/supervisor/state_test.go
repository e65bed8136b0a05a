package supervisor

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func TestTickStateString(t *testing.T) {
	assert.Equal(t, "init", stateInit.String())
	assert.Equal(t, "running", stateRunning.String())
	assert.Equal(t, "ticking", stateTicking.String())
	assert.Equal(t, "stopping", stateStopping.String())
	assert.Equal(t, "stopped", stateStopped.String())
	assert.Equal(t, "unknown", tickState(99).String())
}
