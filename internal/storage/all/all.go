// Package all registers every storage backend. Import it for side effects
// from binaries that select a backend at runtime.
package all

import (
	_ "reltab/internal/storage/mssql"
	_ "reltab/internal/storage/mysql"
	_ "reltab/internal/storage/postgres"
	_ "reltab/internal/storage/sqlite"
)
