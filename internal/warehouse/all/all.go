// Package all registers every built-in warehouse backend. Import it for its
// side effects from the wiring layer:
//
//	import _ "tfletl/internal/warehouse/all"
package all

import (
	_ "tfletl/internal/warehouse/bigquery"
	_ "tfletl/internal/warehouse/postgres"
	_ "tfletl/internal/warehouse/sqlite"
)
