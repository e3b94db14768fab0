package version_test

import (
	"regexp"
	"strings"
	"testing"

	"github.com/shpitdev/referral-pipeline/internal/version"
)

var releaseVersion = regexp.MustCompile(`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)$`)

func TestCurrentIsReleaseVersion(t *testing.T) {
	t.Parallel()

	v := version.Current
	if strings.HasPrefix(v, "v") {
		t.Fatalf("Current=%q: the referrals binary prints versions without a v prefix", v)
	}
	if !releaseVersion.MatchString(v) {
		t.Fatalf("Current=%q must be <major>.<minor>.<patch> without leading zeros", v)
	}
}
