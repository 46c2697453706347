package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drfirst/go-summaryview/internal/audit"
)

func TestNullable(t *testing.T) {
	assert.Nil(t, nullable(""))
	require.NotNil(t, nullable("x"))
	assert.Equal(t, "x", *nullable("x"))

	assert.Nil(t, nullableInt(0))
	assert.Equal(t, 404, *nullableInt(404))
}

func TestSchemaIsEmbedded(t *testing.T) {
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS summary_access_log")
}

func TestAccessLog_RoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	log := NewAccessLog(pool, nil)
	require.NoError(t, log.EnsureSchema(ctx))

	patientID := "test-" + uuid.New().String()
	ev := &audit.AccessEvent{
		ID:          uuid.New().String(),
		PatientID:   patientID,
		Outcome:     "success",
		Allergies:   1,
		Medications: 2,
		Channel:     audit.ChannelAPI,
		At:          time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, log.Write(ctx, ev))
	require.NoError(t, log.Write(ctx, ev))

	events, err := log.Recent(ctx, patientID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)
	assert.Equal(t, 2, events[0].Medications)
	assert.Equal(t, 0, events[0].StatusCode)
}
