package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/guest-registration-walkthrough/pkg/models"
)

func TestRootCmdRejectsUnknownDriver(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--driver", "selenium", "--config", ""})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestRootCmdMissingConfigFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", t.TempDir() + "/absent.yaml"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestReport(t *testing.T) {
	result := models.RunResult{
		RunID:  "run-1",
		Status: models.StatusFailed,
		Steps: []models.StepResult{
			{Name: "open-target", Status: models.StatusSuccess},
			{Name: "verify-landing", Status: models.StatusFailed, ErrorKind: models.ErrorAssertion, ErrorMessage: "title mismatch"},
		},
		Checkpoints: []models.CheckpointResult{
			{Name: models.CheckpointLanding, Status: models.StatusFailed},
		},
		TotalDuration: 1200,
	}

	var out bytes.Buffer
	report(&out, result)

	assert.Contains(t, out.String(), "failed at verify-landing (assertion): title mismatch")
	assert.Contains(t, out.String(), "run run-1 failed in 1200ms")
	assert.NotContains(t, out.String(), "screenshot")
}
