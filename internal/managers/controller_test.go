package managers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubController struct {
	started bool
	err     error
}

func (s *stubController) StartController() error {
	s.started = true
	return s.err
}

func TestStartControllers(t *testing.T) {
	cm := NewControllerManager(zaptest.NewLogger(t).Sugar())
	first, second := &stubController{}, &stubController{}
	cm.AddController("rest", first)
	cm.AddController("other", second)

	require.NoError(t, cm.StartControllers())
	assert.True(t, first.started)
	assert.True(t, second.started)
}

func TestStartControllersStopsAtFailure(t *testing.T) {
	cm := NewControllerManager(zaptest.NewLogger(t).Sugar())
	failing := &stubController{err: errors.New("address already in use")}
	after := &stubController{}
	cm.AddController("rest", failing)
	cm.AddController("other", after)

	err := cm.StartControllers()
	assert.ErrorContains(t, err, "error starting rest controller")
	assert.ErrorContains(t, err, "address already in use")
	assert.False(t, after.started)
}
