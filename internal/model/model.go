// Package model holds the data types shared across posync's pipeline
// stages: configuration loaded from the local store, the tracking
// triplet that drives change detection, and the per-site artifacts
// produced by a tick.
package model

import "time"

// SourceConfig describes the remote SQL Server database posync polls.
// Loaded from the database_configuration table; exactly one row exists.
type SourceConfig struct {
	ODBCSource string
	Host       string
	Port       int
	Database   string
	Schema     string
	Username   string
	Password   string
}

// EmailTransport describes the SMTP relay used to deliver artifacts.
// Loaded from the email_configs table; exactly one row exists.
type EmailTransport struct {
	Host            string
	Port            int
	Username        string
	Password        string
	From            string
	DefaultReceiver string
	StartTLS        bool
}

// SiteBinding maps a site code to the address that receives its artifact.
type SiteBinding struct {
	Site  string
	Email string
}

// SyncParameters is the table/site partition plan posync operates on,
// equivalent to the hardcoded tables/sites/site-dependent lists the
// original service carried in code.
type SyncParameters struct {
	Sites               []string
	Tables              []string
	SiteDependentTables map[string]bool
	SiteKeyColumn       map[string]string // table -> column holding the site code
	PrimaryKeyColumn    string
	TickInterval        time.Duration
}

// TrackingTriplet names the three columns on a source table that together
// act as posync's remote cursor: no local watermark table is kept.
type TrackingTriplet struct {
	TransferState        string // 0 = never sent, 2 = sent at least once
	TransferTimestamp    string // set to now() when TransferState is written
	RowUpdatedTimestamp  string // maintained by the source system on every write
}

// DefaultTrackingTriplet is the column naming used by every source table
// in this deployment.
var DefaultTrackingTriplet = TrackingTriplet{
	TransferState:       "transfer_state",
	TransferTimestamp:   "transfer_timestamp",
	RowUpdatedTimestamp: "row_updated_timestamp",
}

// ChangeRow is one source row pending delivery, already decoded to strings
// under the fixed single-byte encoding.
type ChangeRow struct {
	PrimaryKey string
	Values     []string // positional, aligned with the table's Columns
}

// TableChanges holds every eligible row read from one table during a tick.
type TableChanges struct {
	Table   string
	Columns []string
	Rows    []ChangeRow

	// DecodeErrors counts cells that failed to decode under the fixed
	// encoding and were replaced by the substitution marker. The row
	// itself is still included in Rows; this is reported, not dropped.
	DecodeErrors int
}

// ChangeSet is the full set of table changes bound for one site: the
// union of every generic table's rows plus that site's own rows from each
// site-dependent table.
type ChangeSet struct {
	Site   string
	Tables []TableChanges
}

// TotalRows sums rows across every table section in the change set.
func (c ChangeSet) TotalRows() int {
	n := 0
	for _, t := range c.Tables {
		n += len(t.Rows)
	}
	return n
}

// TableRowCount is one table's contribution to an Artifact, used to build
// a per-table breakdown in the delivery email body.
type TableRowCount struct {
	Table string
	Rows  int
}

// Artifact is a built, on-disk delta file ready for delivery.
type Artifact struct {
	Site        string
	Path        string
	BuiltAt     time.Time
	TableCount  int
	RowCount    int
	TableCounts []TableRowCount
}

// RunSummary is the structured result of one supervisor tick, used for
// logging and metrics.
type RunSummary struct {
	StartedAt        time.Time
	Elapsed          time.Duration
	RowsRead         int
	RowsMarked       int
	ArtifactsBuilt   int
	DeliveriesOK     int
	DeliveriesFailed int
	IneligibleTables []string
	NotFoundTables   []string
	DecodeErrors     int
}
