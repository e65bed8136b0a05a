package supervisor

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ntchinda/posync/internal/configstore"
	"github.com/ntchinda/posync/internal/errs"
	"github.com/ntchinda/posync/internal/model"
)

func newTestSupervisor() *Supervisor {
	return &Supervisor{logger: logrus.New(), metrics: NoopSink{}}
}

// fakeWriter records every MarkTransferred call so tests can assert which
// pkCol each (table, site-dependent or not) call used.
type fakeWriter struct {
	calls []markCall
	err   error
}

type markCall struct {
	table string
	pkCol string
	keys  []string
}

func (w *fakeWriter) MarkTransferred(_ context.Context, table, pkCol string, pkValues []string) (int64, error) {
	w.calls = append(w.calls, markCall{table: table, pkCol: pkCol, keys: pkValues})
	if w.err != nil {
		return 0, w.err
	}
	return int64(len(pkValues)), nil
}

func TestRecordTableOutcomeNotFound(t *testing.T) {
	s := newTestSupervisor()
	var summary model.RunSummary

	err := s.recordTableOutcome(&summary, "MISSING", &errs.NotFoundError{Table: "MISSING"})

	assert.NoError(t, err)
	assert.Equal(t, []string{"MISSING"}, summary.NotFoundTables)
}

func TestRecordTableOutcomeIneligible(t *testing.T) {
	s := newTestSupervisor()
	var summary model.RunSummary

	err := s.recordTableOutcome(&summary, "BPARTNER", &errs.IneligibleError{Table: "BPARTNER"})

	assert.NoError(t, err)
	assert.Equal(t, []string{"BPARTNER"}, summary.IneligibleTables)
}

func TestRecordTableOutcomeConfigErrorAborts(t *testing.T) {
	s := newTestSupervisor()
	var summary model.RunSummary

	err := s.recordTableOutcome(&summary, "ITMMASTER", &errs.ConfigError{})

	assert.Error(t, err)
}

func TestRecordTableOutcomeNilIsNoop(t *testing.T) {
	s := newTestSupervisor()
	var summary model.RunSummary

	assert.NoError(t, s.recordTableOutcome(&summary, "ITMMASTER", nil))
	assert.Empty(t, summary.NotFoundTables)
	assert.Empty(t, summary.IneligibleTables)
}

// Regression for the pkCol threading bug: markAndAccumulate must mark
// rows using whichever pkCol its caller passes, not a column hardwired
// inside the supervisor. tick() passes the site-key column here for
// site-dependent tables (scenario S1's partitioning requirement).
func TestMarkAndAccumulateUsesTheGivenPkCol(t *testing.T) {
	w := &fakeWriter{}
	s := newTestSupervisor()
	s.writer = w
	var summary model.RunSummary

	changes := model.TableChanges{
		Table: "ITMFACILIT",
		Rows:  []model.ChangeRow{{PrimaryKey: "AE011"}, {PrimaryKey: "AE012"}},
	}

	err := s.markAndAccumulate(context.Background(), &summary, "ITMFACILIT", "STOFCY_0", changes)

	require.NoError(t, err)
	require.Len(t, w.calls, 1)
	assert.Equal(t, "STOFCY_0", w.calls[0].pkCol)
	assert.Equal(t, []string{"AE011", "AE012"}, w.calls[0].keys)
	assert.Equal(t, 2, summary.RowsRead)
	assert.Equal(t, 2, summary.RowsMarked)
}

func TestMarkAndAccumulateSkipsMarkingWhenNoRows(t *testing.T) {
	w := &fakeWriter{}
	s := newTestSupervisor()
	s.writer = w
	var summary model.RunSummary

	err := s.markAndAccumulate(context.Background(), &summary, "ITMMASTER", "AUUID_0", model.TableChanges{})

	require.NoError(t, err)
	assert.Empty(t, w.calls)
	assert.Equal(t, 0, summary.RowsMarked)
}

func TestMarkAndAccumulatePropagatesWriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("lock timeout")}
	s := newTestSupervisor()
	s.writer = w
	var summary model.RunSummary

	changes := model.TableChanges{Rows: []model.ChangeRow{{PrimaryKey: "1"}}}
	err := s.markAndAccumulate(context.Background(), &summary, "ITMMASTER", "AUUID_0", changes)

	assert.Error(t, err)
}

func TestRecordDecodeErrorsAccumulatesOnSummary(t *testing.T) {
	s := newTestSupervisor()
	var summary model.RunSummary

	s.recordDecodeErrors(&summary, "ITMMASTER", model.TableChanges{DecodeErrors: 2})
	s.recordDecodeErrors(&summary, "STOCK", model.TableChanges{DecodeErrors: 1})

	assert.Equal(t, 3, summary.DecodeErrors)
}

func TestRecordDecodeErrorsNoopWhenZero(t *testing.T) {
	s := newTestSupervisor()
	var summary model.RunSummary

	s.recordDecodeErrors(&summary, "ITMMASTER", model.TableChanges{})

	assert.Equal(t, 0, summary.DecodeErrors)
}

// fakeSender fails delivery for any site named in failFor, and otherwise
// records which site it was asked to deliver to.
type fakeSender struct {
	failFor map[string]bool
	sent    []string
}

func (f *fakeSender) Send(artifact model.Artifact, _ string) error {
	if f.failFor[artifact.Site] {
		return &errs.DeliveryError{Site: artifact.Site, Err: errors.New("smtp rejected")}
	}
	f.sent = append(f.sent, artifact.Site)
	return nil
}

// newTestStore opens an in-memory config store with no tables. deliverAll
// only touches it through recipientFor, which tolerates the resulting
// query error by falling back to an empty recipient.
func newTestStore(t *testing.T) *configstore.Store {
	t.Helper()
	store, err := configstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Scenario S4: a delivery failure for one site must not block or alter
// the outcome for any other site in the same tick.
func TestDeliverAllIsolatesOneSitesFailure(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{"S1": true}}
	s := newTestSupervisor()
	s.sender = sender
	s.artifactDir = t.TempDir()
	s.concurrency = 2
	s.store = newTestStore(t)

	changeSets := []model.ChangeSet{
		{Site: "S1", Tables: []model.TableChanges{{Table: "A", Rows: []model.ChangeRow{{PrimaryKey: "1"}}}}},
		{Site: "S2", Tables: []model.TableChanges{{Table: "A", Rows: []model.ChangeRow{{PrimaryKey: "1"}}}}},
	}

	var summary model.RunSummary
	s.deliverAll(context.Background(), changeSets, &summary)

	assert.Equal(t, []string{"S2"}, sender.sent)
	assert.Equal(t, 1, summary.DeliveriesOK)
	assert.Equal(t, 1, summary.DeliveriesFailed)
	assert.Equal(t, 2, summary.ArtifactsBuilt)
}

func TestDeliverAllSkipsEmptyChangeSets(t *testing.T) {
	sender := &fakeSender{}
	s := newTestSupervisor()
	s.sender = sender
	s.artifactDir = t.TempDir()
	s.concurrency = 2
	s.store = newTestStore(t)

	var summary model.RunSummary
	s.deliverAll(context.Background(), []model.ChangeSet{{Site: "S1"}}, &summary)

	assert.Empty(t, sender.sent)
	assert.Equal(t, 0, summary.ArtifactsBuilt)
}
