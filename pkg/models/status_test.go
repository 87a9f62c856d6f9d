package models

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeUnset, "unset"},
		{OutcomeFinish, "finish"},
		{OutcomeSatisfied, "satisfied"},
		{OutcomeNotModified, "not_modified"},
		{OutcomeStored, "stored"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.outcome.String())
	}
}

func TestOutcome_IsValid(t *testing.T) {
	assert.True(t, OutcomeSkipped.IsValid())
	assert.True(t, OutcomeFailed.IsValid())
	assert.False(t, OutcomeUnset.IsValid())
	assert.False(t, Outcome("arbitrary").IsValid())
}

func TestResultConstructors(t *testing.T) {
	finish := FinishResult()
	assert.Equal(t, http.StatusOK, finish.StatusCode)
	assert.Equal(t, "Finish", finish.Message)

	bad := BadRequestResult()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	assert.Equal(t, "Bad Request", bad.Message)

	accepted := AcceptedResult(OutcomeStored)
	assert.Equal(t, http.StatusOK, accepted.StatusCode)
	assert.Equal(t, "Accepted", accepted.Message)
	assert.Equal(t, OutcomeStored, accepted.Outcome)
}
