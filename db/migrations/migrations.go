package migrations

import "embed"

// FS holds the SQL migration pairs of this directory, served to
// golang-migrate through its iofs source driver.
//
//go:embed *.sql
var FS embed.FS

// Version is the schema version the embedded migrations produce.
const Version = 1
