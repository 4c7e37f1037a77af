package directors_test

import (
	"testing"

	"mddb/src/directors"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestServiceManager(t *testing.T) {
	directors.ResetServiceManager()
	t.Cleanup(directors.ResetServiceManager)

	// Nothing wired yet
	empty := directors.GetServiceManager()
	assert.Nil(t, empty.ProjectService)
	assert.Nil(t, empty.CleanupService)

	f := newFixture(t, nil)
	logger := zaptest.NewLogger(t).Sugar()
	manager := directors.InitServiceManager(f.service, f.cleanup, logger)
	assert.Same(t, manager, directors.GetServiceManager())
	assert.Same(t, f.service, directors.GetServiceManager().ProjectService)

	// Later initializations keep the first services
	other := newFixture(t, nil)
	directors.InitServiceManager(other.service, other.cleanup, logger)
	assert.Same(t, f.cleanup, directors.GetServiceManager().CleanupService)

	directors.ResetServiceManager()
	assert.Nil(t, directors.GetServiceManager().ProjectService)
}
