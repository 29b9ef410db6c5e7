// Package openapi carries the HTTP API description.
package openapi

import _ "embed"

// Schema is the OpenAPI 3 document for the HTTP routes.
//
//go:embed openapi.yaml
var Schema []byte
