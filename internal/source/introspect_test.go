package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasTrackingTripletRequiresAllThree(t *testing.T) {
	cols := []ColumnInfo{
		{Name: "transfer_state"},
		{Name: "transfer_timestamp"},
	}
	assert.False(t, HasTrackingTriplet(cols, "transfer_state", "transfer_timestamp", "row_updated_timestamp"))

	cols = append(cols, ColumnInfo{Name: "row_updated_timestamp"})
	assert.True(t, HasTrackingTriplet(cols, "transfer_state", "transfer_timestamp", "row_updated_timestamp"))
}

func TestHasColumn(t *testing.T) {
	cols := []ColumnInfo{{Name: "AUUID_0"}, {Name: "STOFCY_0"}}
	assert.True(t, HasColumn(cols, "AUUID_0"))
	assert.False(t, HasColumn(cols, "MISSING"))
}
