package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodKey(t *testing.T) {
	at := time.Date(2025, time.March, 15, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		mode ResetMode
		spec string
		want string
	}{
		{"never is empty", ResetModeNever, "", ""},
		{"daily", ResetModeDaily, "", "2025-03-15"},
		{"monthly", ResetModeMonthly, "", "202503"},
		{"yearly", ResetModeYearly, "", "2025"},
		{"custom weekly", ResetModeCustom, "weekly", "2025W11"},
		{"custom quarterly", ResetModeCustom, "quarterly", "2025Q1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PeriodKey(tt.mode, tt.spec, at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPeriodKeyUnknownCustomSpec(t *testing.T) {
	_, err := PeriodKey(ResetModeCustom, "fiscal-sprint", time.Now())
	assert.Error(t, err)
}

func TestPeriodKeyDailyCrossesMidnightUTC(t *testing.T) {
	before := time.Date(2025, time.June, 30, 23, 59, 59, 0, time.UTC)
	after := before.Add(time.Second)

	keyBefore, err := PeriodKey(ResetModeDaily, "", before)
	require.NoError(t, err)
	keyAfter, err := PeriodKey(ResetModeDaily, "", after)
	require.NoError(t, err)

	assert.NotEqual(t, keyBefore, keyAfter)
}

func TestRegisterPeriodFunc(t *testing.T) {
	RegisterPeriodFunc("always-same", func(time.Time) string { return "x" })

	key, err := PeriodKey(ResetModeCustom, "always-same", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "x", key)
}
