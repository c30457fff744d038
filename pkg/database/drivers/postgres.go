package drivers

import (
	// Register the pgx stdlib driver under the "pgx" name so the store can
	// reach PostgreSQL through plain database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)
