package sequence

import (
	"fmt"
	"time"
)

// CAPASeries is the corrective-action number series.
var CAPASeries = Series{Table: "capas", Column: "number", TenantColumn: "tenant_id"}

// CAPAPadding is the minimum suffix width of CAPA numbers. Values past 999
// simply grow wider.
const CAPAPadding = 3

// CAPAPrefix returns the year-scoped CAPA prefix, e.g. "CAPA-2026-".
// The year rolls the series over: numbering restarts at 001 each January.
func CAPAPrefix(now time.Time) string {
	return fmt.Sprintf("CAPA-%d-", now.Year())
}
