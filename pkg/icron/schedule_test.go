package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfo(t *testing.T) {
	ref := time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		expr     string
		wantNext time.Time
		wantLast time.Time
	}{
		{
			name:     "hourly",
			expr:     "0 * * * *",
			wantNext: time.Date(2024, 3, 10, 13, 0, 0, 0, time.UTC),
			wantLast: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
		},
		{
			name:     "daily at three",
			expr:     "0 3 * * *",
			wantNext: time.Date(2024, 3, 11, 3, 0, 0, 0, time.UTC),
			wantLast: time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC),
		},
		{
			name:     "yearly descriptor",
			expr:     "@yearly",
			wantNext: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			wantLast: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "trigger exactly at reference",
			expr:     "30 12 * * *",
			wantNext: time.Date(2024, 3, 11, 12, 30, 0, 0, time.UTC),
			wantLast: ref,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := GetTriggerInfo(tt.expr, ref)
			require.NoError(t, err)
			assert.Equal(t, tt.expr, info.Expression)
			assert.True(t, tt.wantNext.Equal(info.Next), "next = %v", info.Next)
			assert.True(t, tt.wantLast.Equal(info.Last), "last = %v", info.Last)
			assert.Equal(t, info.Next.Sub(ref), info.TimeUntilNext)
			assert.Equal(t, ref.Sub(info.Last), info.TimeSinceLast)
		})
	}
}

func TestGetTriggerInfo_Invalid(t *testing.T) {
	_, err := GetTriggerInfo("not a cron", time.Now())
	assert.Error(t, err)

	_, err = GetTriggerInfo("0 0 * * * *", time.Now())
	assert.Error(t, err, "six-field expressions are not accepted")
}
