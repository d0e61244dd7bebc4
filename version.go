package quartet

import _ "embed"

// Version is the current release, read from the VERSION file. Callers
// should strings.TrimSpace it before display.
//
//go:embed VERSION
var Version string
