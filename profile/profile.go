// Package profile selects the instantiation strategy and module shape for
// a deployment target. A profile only parameterizes how generated glue
// loads and instantiates the module; marshalling and the export surface
// are identical across targets.
package profile

import (
	"strings"

	"github.com/wasmbind/wasmbind/errors"
)

// Recognized target tags.
const (
	TagEmbeddedWeb   = "embedded-web"
	TagBundler       = "bundler"
	TagServerRuntime = "server-runtime"
	TagScript        = "script"
)

// Loader selects how init obtains and instantiates the module bytes.
type Loader uint8

const (
	// LoaderFetchURL fetches the module relative to import.meta.url and
	// prefers streaming instantiation.
	LoaderFetchURL Loader = iota

	// LoaderBundlerImport imports the module as a bundler-resolved asset
	// URL and fetches from there.
	LoaderBundlerImport

	// LoaderFileRead reads the module from disk with node:fs/promises.
	LoaderFileRead

	// LoaderScriptFetch accepts an explicit source and falls back to
	// global fetch when the host provides one.
	LoaderScriptFetch
)

var loaderNames = [...]string{
	LoaderFetchURL:      "fetch_url",
	LoaderBundlerImport: "bundler_import",
	LoaderFileRead:      "file_read",
	LoaderScriptFetch:   "script_fetch",
}

func (l Loader) String() string {
	if int(l) < len(loaderNames) {
		return loaderNames[l]
	}
	return "unknown"
}

// Profile parameterizes the generated init sequence for one target.
type Profile struct {
	Tag    string
	Loader Loader

	// ESM selects ES-module output; otherwise the glue is a classic
	// script wrapped in an IIFE assigning one global.
	ESM bool
}

func (p Profile) String() string {
	return p.Tag
}

var profiles = map[string]Profile{
	TagEmbeddedWeb:   {Tag: TagEmbeddedWeb, Loader: LoaderFetchURL, ESM: true},
	TagBundler:       {Tag: TagBundler, Loader: LoaderBundlerImport, ESM: true},
	TagServerRuntime: {Tag: TagServerRuntime, Loader: LoaderFileRead, ESM: true},
	TagScript:        {Tag: TagScript, Loader: LoaderScriptFetch, ESM: false},
}

// Tags returns the recognized target tags in documentation order.
func Tags() []string {
	return []string{TagEmbeddedWeb, TagBundler, TagServerRuntime, TagScript}
}

// Select resolves a target tag to its profile.
func Select(tag string) (Profile, error) {
	if p, ok := profiles[tag]; ok {
		return p, nil
	}
	return Profile{}, errors.InvalidArgument(errors.PhaseGenerate,
		"unknown target %q, expected one of: %s", tag, strings.Join(Tags(), ", "))
}
