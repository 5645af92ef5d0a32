// Package docs 内嵌的接口文档
package docs

import _ "embed"

// OpenAPI 接口描述（OpenAPI 3，YAML）
//
//go:embed api/openapi.yaml
var OpenAPI []byte
