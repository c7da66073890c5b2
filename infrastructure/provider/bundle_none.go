//go:build !embed_model

package provider

import "embed"

var bundledModels embed.FS

const modelBundled = false
