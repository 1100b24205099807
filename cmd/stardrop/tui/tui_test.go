package tui_test

import (
	"testing"

	"github.com/SpatiumPortae/stardrop/cmd/stardrop/tui"
	"github.com/SpatiumPortae/stardrop/internal/semver"
	"github.com/stretchr/testify/assert"
)

func TestByteCountSI(t *testing.T) {
	tests := map[int64]string{
		0:             "0 B",
		999:           "999 B",
		1000:          "1.0 kB",
		50000:         "50.0 kB",
		1_500_000:     "1.5 MB",
		3_000_000_000: "3.0 GB",
	}
	for in, want := range tests {
		assert.Equal(t, want, tui.ByteCountSI(in))
	}
}

func TestVersionTask(t *testing.T) {
	tests := []struct {
		name          string
		local, remote string
		wantErr       bool
	}{
		{"equal", "v0.1.0", "v0.1.0", false},
		{"newer patch", "v0.1.3", "v0.1.0", false},
		{"older patch", "v0.1.0", "v0.1.3", false},
		{"different minor below v1", "v0.2.0", "v0.1.0", true},
		{"different minor", "v1.2.0", "v1.1.0", false},
		{"different major", "v2.0.0", "v1.0.0", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			task, err := tui.VersionTask(semver.MustParse(tc.local), semver.MustParse(tc.remote))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.NotEmpty(t, task)
		})
	}
}
