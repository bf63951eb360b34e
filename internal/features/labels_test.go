package features

import (
	"testing"
	"time"

	"horse.fit/lens/internal/db"
)

func ms(v int64) *int64 { return &v }

func TestDeriveLabel(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	dwellThreshold := int64(15000)
	impressionTimeout := 24 * time.Hour

	event := func(eventType string, age time.Duration, duration *int64) db.EventRecord {
		return db.EventRecord{
			EventType:  eventType,
			DurationMS: duration,
			CreatedAt:  now.Add(-age),
		}
	}

	cases := []struct {
		name   string
		events []db.EventRecord
		want   Label
	}{
		{
			name:   "no events",
			events: nil,
			want:   LabelUnlabeled,
		},
		{
			name: "star wins over dismiss",
			events: []db.EventRecord{
				event("dismiss", 2*time.Hour, nil),
				event("star", time.Hour, nil),
			},
			want: LabelPositive,
		},
		{
			name: "external click wins over dismiss",
			events: []db.EventRecord{
				event("dismiss", 2*time.Hour, nil),
				event("external_click", time.Hour, nil),
			},
			want: LabelPositive,
		},
		{
			name: "open at dwell threshold is positive",
			events: []db.EventRecord{
				event("open", time.Hour, ms(15000)),
			},
			want: LabelPositive,
		},
		{
			name: "short open then dismiss is negative",
			events: []db.EventRecord{
				event("open", 2*time.Hour, ms(3000)),
				event("dismiss", time.Hour, nil),
			},
			want: LabelNegative,
		},
		{
			name: "open without duration is not positive",
			events: []db.EventRecord{
				event("open", time.Hour, nil),
			},
			want: LabelUnlabeled,
		},
		{
			name: "stale impression with no open is negative",
			events: []db.EventRecord{
				event("impression", 48*time.Hour, nil),
			},
			want: LabelNegative,
		},
		{
			name: "fresh impression is still unlabeled",
			events: []db.EventRecord{
				event("impression", 2*time.Hour, nil),
			},
			want: LabelUnlabeled,
		},
		{
			name: "stale impression followed by short open is unlabeled",
			events: []db.EventRecord{
				event("impression", 48*time.Hour, nil),
				event("open", 47*time.Hour, ms(2000)),
			},
			want: LabelUnlabeled,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := DeriveLabel(tc.events, now, dwellThreshold, impressionTimeout)
			if got != tc.want {
				t.Fatalf("DeriveLabel() = %s, want %s", got, tc.want)
			}
		})
	}
}
