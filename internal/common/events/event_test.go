package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventRoundTripsData(t *testing.T) {
	evt, err := NewEvent(EventTransactionTransitioned, "order_transaction", "tx-1", TransactionTransitionedData{
		TransactionID: "tx-1",
		GatewayStatus: "completed",
		Action:        "paid",
		FromStateID:   "s-open",
		ToStateID:     "s-paid",
	})
	require.NoError(t, err)
	evt.WithCorrelation("corr-1")

	assert.Len(t, evt.ID, 26)
	assert.Equal(t, 1, evt.Version)
	assert.Equal(t, "corr-1", evt.CorrelationID)

	var data TransactionTransitionedData
	require.NoError(t, evt.DecodeData(&data))
	assert.Equal(t, "paid", data.Action)
	assert.Equal(t, "s-paid", data.ToStateID)
}
