// Package manifest loads and validates deployment manifests. A manifest is a
// YAML document declaring the units of a deployment, their dependency edges,
// the outputs they produce, and the inputs they consume. Loaded manifests are
// converted into unit descriptors for the orchestrator; adapter construction
// is delegated to a factory so the manifest layer stays free of side effects.
package manifest
