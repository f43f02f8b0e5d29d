package replay

import (
	"testing"
	"time"
)

func TestIsStuck(t *testing.T) {
	base := time.Unix(1000, 0)
	tests := []struct {
		name        string
		now         time.Time
		waitingSince time.Time
		recordGap   time.Duration
		want        bool
	}{
		{"well within slack", base.Add(1 * time.Second), base, 0, false},
		{"exactly at threshold", base.Add(2 * time.Second), base, 0, false},
		{"just past threshold", base.Add(2*time.Second + time.Millisecond), base, 0, true},
		{"large recording gap absorbs long wait", base.Add(10 * time.Second), base, 10 * time.Second, false},
		{"negative recording gap treated as zero", base.Add(3 * time.Second), base, -5 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsStuck(tt.now, tt.waitingSince, tt.recordGap)
			if got != tt.want {
				t.Errorf("IsStuck(%v, %v, %v) = %v, want %v", tt.now, tt.waitingSince, tt.recordGap, got, tt.want)
			}
		})
	}
}
