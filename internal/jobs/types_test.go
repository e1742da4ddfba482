package jobs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermanent(t *testing.T) {
	base := errors.New("goal not found")

	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanent(base))

	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "goal not found", err.Error())

	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, IsPermanent(wrapped))
}

func TestReconcileJob_ImplementsJob(t *testing.T) {
	var j Job = &ReconcileJob{JobID: "job-1", Status: JobStatusPending}

	assert.Equal(t, "job-1", j.GetID())
	assert.Equal(t, JobTypeReconcile, j.GetType())
	assert.Equal(t, JobStatusPending, j.GetStatus())
}
