package profile_test

import (
	"strings"
	"testing"

	"github.com/wasmbind/wasmbind/errors"
	"github.com/wasmbind/wasmbind/profile"
)

func TestSelect(t *testing.T) {
	tests := []struct {
		tag    string
		loader profile.Loader
		esm    bool
	}{
		{"embedded-web", profile.LoaderFetchURL, true},
		{"bundler", profile.LoaderBundlerImport, true},
		{"server-runtime", profile.LoaderFileRead, true},
		{"script", profile.LoaderScriptFetch, false},
	}

	for _, tc := range tests {
		t.Run(tc.tag, func(t *testing.T) {
			p, err := profile.Select(tc.tag)
			if err != nil {
				t.Fatalf("Select(%q) failed: %v", tc.tag, err)
			}
			if p.Tag != tc.tag {
				t.Errorf("tag = %q, want %q", p.Tag, tc.tag)
			}
			if p.Loader != tc.loader {
				t.Errorf("loader = %v, want %v", p.Loader, tc.loader)
			}
			if p.ESM != tc.esm {
				t.Errorf("esm = %v, want %v", p.ESM, tc.esm)
			}
		})
	}
}

func TestSelectUnknown(t *testing.T) {
	_, err := profile.Select("cloud")
	if err == nil {
		t.Fatal("Select(cloud) succeeded, want error")
	}
	if !errors.Is(err, errors.InvalidArgument(errors.PhaseGenerate, "")) {
		t.Errorf("error is not an invalid_argument: %v", err)
	}
	for _, tag := range profile.Tags() {
		if !strings.Contains(err.Error(), tag) {
			t.Errorf("error %q does not list %q", err, tag)
		}
	}
}

func TestTagsMatchProfiles(t *testing.T) {
	tags := profile.Tags()
	if len(tags) != 4 {
		t.Fatalf("Tags() returned %d entries, want 4", len(tags))
	}
	for _, tag := range tags {
		if _, err := profile.Select(tag); err != nil {
			t.Errorf("Select(%q) failed: %v", tag, err)
		}
	}
}

func TestLoaderString(t *testing.T) {
	tests := []struct {
		want   string
		loader profile.Loader
	}{
		{"fetch_url", profile.LoaderFetchURL},
		{"bundler_import", profile.LoaderBundlerImport},
		{"file_read", profile.LoaderFileRead},
		{"script_fetch", profile.LoaderScriptFetch},
		{"unknown", profile.Loader(9)},
	}

	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			if got := tc.loader.String(); got != tc.want {
				t.Errorf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}
