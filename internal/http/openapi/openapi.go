// Package openapi embeds the description of the public HTTP API.
package openapi

import _ "embed"

// YAML is served verbatim at /openapi.yaml.
//
//go:embed openapi.yaml
var YAML []byte
