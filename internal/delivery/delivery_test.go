package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	gomail "gopkg.in/gomail.v2"

	"github.com/ntchinda/posync/internal/model"
)

func TestSubjectMatchesHistoricalFormat(t *testing.T) {
	subject := Subject(model.Artifact{Site: "AE011", TableCount: 12, RowCount: 340})
	assert.Equal(t, "Database Sync - AE011 - 12 tables, 340 records", subject)
}

func TestBodyListsEachTableWithItsRecordCount(t *testing.T) {
	body := Body(model.Artifact{
		Site:       "AE011",
		TableCount: 2,
		RowCount:   3,
		TableCounts: []model.TableRowCount{
			{Table: "ITMMASTER", Rows: 2},
			{Table: "STOCK", Rows: 1},
		},
	})

	assert.Contains(t, body, "Sync Report for AE011")
	assert.Contains(t, body, "ITMMASTER: 2 records")
	assert.Contains(t, body, "STOCK: 1 records")
}

func TestBodyWithNoTablesStillSummarizes(t *testing.T) {
	body := Body(model.Artifact{Site: "AE011", TableCount: 0, RowCount: 0})
	assert.Contains(t, body, "Attached: 0 tables, 0 records.")
}

func TestNewSenderAppliesStartTLSPolicy(t *testing.T) {
	mandatory := NewSender(model.EmailTransport{Host: "smtp.internal", Port: 587, StartTLS: true})
	assert.Equal(t, gomail.MandatoryStartTLS, mandatory.dialer.StartTLSPolicy)

	disabled := NewSender(model.EmailTransport{Host: "smtp.internal", Port: 587, StartTLS: false})
	assert.Equal(t, gomail.NoStartTLS, disabled.dialer.StartTLSPolicy)
}
