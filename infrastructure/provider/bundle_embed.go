//go:build embed_model

package provider

import "embed"

// bundledModels holds models/<name>/ as written by cmd/download-model.
//
//go:embed all:models
var bundledModels embed.FS

const modelBundled = true
