package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STAFF_IDS", "")
	t.Setenv("BRANCH_CHANNELS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Workflow.ConversationIdle())
	assert.Equal(t, 15*time.Minute, cfg.Workflow.RemarksMaxAge())
	assert.Equal(t, 7*24*time.Hour, cfg.Workflow.AutoConfirmAfter())
	assert.Equal(t, []string{"HQ"}, cfg.Catalog.Branches)
	assert.Empty(t, cfg.Routing.BranchChannels)
	assert.Equal(t, "@every 1m", cfg.Scheduler.RemarksSweepSpec)
}

func TestLoadRoutingAndStaff(t *testing.T) {
	t.Setenv("BRANCH_CHANNELS", "HQ:-1001, NORTH:-1002")
	t.Setenv("STAFF_IDS", "11, 12")
	t.Setenv("STAFF_NAMES", "11:Dana")
	t.Setenv("CATALOG_BRANCHES", "HQ,NORTH")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"HQ": "-1001", "NORTH": "-1002"}, cfg.Routing.BranchChannels)
	assert.True(t, cfg.Staff.IsStaff("12"))
	assert.False(t, cfg.Staff.IsStaff("13"))
	assert.Equal(t, "Dana", cfg.Staff.Names["11"])
	assert.Equal(t, []string{"HQ", "NORTH"}, cfg.Catalog.Branches)
}

func TestLoadRejectsMalformedPairs(t *testing.T) {
	t.Setenv("BRANCH_CHANNELS", "HQ")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	t.Setenv("BRANCH_CHANNELS", "")
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	assert.Error(t, err)
}
