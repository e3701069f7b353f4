package profile

import "embed"

// schemaFS contains the embedded profile JSON schema.
//
//go:embed profile-schema.json
var schemaFS embed.FS
