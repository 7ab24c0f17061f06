// Package configs provides embedded configuration templates for doclens.
//
// Templates are embedded at build time with //go:embed so they ship with
// every distribution. `doclens init` writes ConfigTemplate as doclens.yaml
// into the target directory; internal/config then layers it over the
// hardcoded defaults, with DOCLENS_* environment variables on top.
package configs

import _ "embed"

// ConfigTemplate is the commented doclens.yaml starting point written by
// `doclens init`. Every key is optional.
//
//go:embed doclens.example.yaml
var ConfigTemplate string
