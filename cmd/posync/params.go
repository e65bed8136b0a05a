package main

// defaultPrimaryKeyColumn is the primary-key column used on every table
// that isn't site-dependent.
const defaultPrimaryKeyColumn = "AUUID_0"

// defaultTables is the fixed set of ERP tables posync keeps in sync,
// carried over from the original deployment's hardcoded table list.
var defaultTables = []string{
	"ITMMASTER", "ITMFACILIT", "FACILITY", "ITMSALES",
	"BPARTNER", "BPCUSTOMER", "SORDER", "SORDERP",
	"STOCK", "STOJOURNAL", "SPRICLIST", "ITMBPC",
}

// defaultSiteDependentTables lists the tables that must be read once per
// site rather than once overall, because their rows are scoped to a
// single facility/site.
var defaultSiteDependentTables = map[string]bool{
	"ITMFACILIT": true,
	"FACILITY":   true,
	"STOCK":      true,
}

// defaultSiteKeyColumn names, for each site-dependent table, the column
// holding the site/facility code to filter on.
var defaultSiteKeyColumn = map[string]string{
	"ITMFACILIT": "STOFCY_0",
	"FACILITY":   "FCY_0",
	"STOCK":      "STOFCY_0",
}
