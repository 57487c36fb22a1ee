// Package configs provides the embedded configuration template for docdex.
//
// The template is embedded at build time with go:embed so it ships in
// every distribution. `docdex init` writes it as a starter docdex.yaml;
// defaults live in internal/config and the file only needs to override
// what differs.
package configs

import _ "embed"

// ConfigTemplate is the starter configuration written by `docdex init`.
//
//go:embed docdex.example.yaml
var ConfigTemplate string
