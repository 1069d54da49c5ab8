// Package migrations embeds the schema migrations for every supported database.
// Each dialect lives in its own sub folder because embed does not allow ../ paths.
package migrations

import "embed"

//go:embed postgres mysql sqllite3
var FS embed.FS
