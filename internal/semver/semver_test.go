package semver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SpatiumPortae/stardrop/internal/semver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("positive", func(t *testing.T) {
		for _, s := range []string{"v0.0.1", "v10.24.30", "v1.0.0"} {
			ver, err := semver.Parse(s)
			assert.Nil(t, err)
			assert.Equal(t, s, ver.String())
		}
	})
	t.Run("negative", func(t *testing.T) {
		for name, s := range map[string]string{
			"no leading v":    "0.0.1",
			"major leading 0": "v01.0.1",
			"minor leading 0": "v0.01.1",
			"patch leading 0": "v0.1.01",
			"missing patch":   "v1.2",
			"suffix":          "v1.2.3-rc1",
		} {
			t.Run(name, func(t *testing.T) {
				_, err := semver.Parse(s)
				assert.Equal(t, semver.ErrParse, err)
			})
		}
	})
}

func TestCompare(t *testing.T) {
	sv := semver.MustParse("v1.1.1")
	tests := map[string]struct {
		oracle string
		want   semver.Comparison
	}{
		"major larger": {"v2.0.0", semver.CompareOldMajor},
		"major less":   {"v0.0.0", semver.CompareNewMajor},
		"minor larger": {"v1.2.0", semver.CompareOldMinor},
		"minor less":   {"v1.0.0", semver.CompareNewMinor},
		"patch larger": {"v1.1.2", semver.CompareOldPatch},
		"patch less":   {"v1.1.0", semver.CompareNewPatch},
		"equal":        {"v1.1.1", semver.CompareEqual},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, sv.Compare(semver.MustParse(tc.oracle)))
		})
	}
}

func TestCompatible(t *testing.T) {
	assert.True(t, semver.MustParse("v1.2.0").Compatible(semver.MustParse("v1.9.3")))
	assert.False(t, semver.MustParse("v1.2.0").Compatible(semver.MustParse("v2.0.0")))
	assert.True(t, semver.MustParse("v0.3.1").Compatible(semver.MustParse("v0.3.7")))
	assert.False(t, semver.MustParse("v0.3.1").Compatible(semver.MustParse("v0.4.0")))
}

func TestGetBrokerVersion(t *testing.T) {
	want := semver.MustParse("v0.2.5")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	got, err := semver.GetBrokerVersion(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
