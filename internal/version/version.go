package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Version is the release version, overridden at build time with
// -ldflags "-X github.com/a-marczewski/faultline/internal/version.Version=..."
var Version = "0.1.0"

// ReleasesURL is the GitHub endpoint queried for the latest release.
const ReleasesURL = "https://api.github.com/repos/a-marczewski/faultline/releases/latest"

// Release represents a GitHub release
type Release struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
}

// CheckForUpdates returns the latest release version when it is newer than
// Version, or "" when up to date.
func CheckForUpdates(ctx context.Context, url string) (string, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "faultline-version-checker")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil // No releases found
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("release check returned status %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", fmt.Errorf("failed to decode release: %w", err)
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	if !IsNewer(Version, latest) {
		return "", nil
	}
	return latest, nil
}

// IsNewer reports whether latest is a newer release than current. Numeric
// components are compared in order; a pre-release or build suffix such as
// "-rc1" is ignored.
func IsNewer(current, latest string) bool {
	if latest == "" {
		return false
	}
	c, l := components(current), components(latest)
	for i := 0; i < len(c) && i < len(l); i++ {
		if l[i] != c[i] {
			return l[i] > c[i]
		}
	}
	return len(l) > len(c)
}

func components(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	fields := strings.Split(v, ".")
	out := make([]int, len(fields))
	for i, f := range fields {
		out[i], _ = strconv.Atoi(f)
	}
	return out
}
