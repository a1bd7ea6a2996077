//go:build integration

package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManishShirke/aiops-agent/internal/model"
	"github.com/ManishShirke/aiops-agent/internal/storage"
	"github.com/ManishShirke/aiops-agent/internal/testutil"
)

var testDB *storage.Postgres

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		tc.Terminate()
		os.Exit(1)
	}

	code := m.Run()
	_ = testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func TestPostgresCompactionRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, err := testDB.Pool().Exec(ctx, `TRUNCATE incidents`)
	require.NoError(t, err)

	a, err := testDB.InsertIncident(ctx, "payments-api latency", "scale_pods")
	require.NoError(t, err)
	b, err := testDB.InsertIncident(ctx, "Incident A", "Reboot")
	require.NoError(t, err)
	_, err = testDB.InsertIncident(ctx, "Incident B", "Patch")
	require.NoError(t, err)

	id, err := testDB.ReplaceIncidents(ctx, []int64{a, b}, model.CompactedSummary, model.CompactedResolution)
	require.NoError(t, err)
	assert.Greater(t, id, b)

	all, err := testDB.ListIncidents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Incident B", all[0].Summary)
	assert.Equal(t, model.CompactedSummary, all[1].Summary)

	hits, err := testDB.SearchIncidents(ctx, "Incident")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestPostgresFacts(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.PutFact(ctx, "status", "active"))
	require.NoError(t, testDB.PutFact(ctx, "status", "resolved"))
	v, err := testDB.GetFact(ctx, "status")
	require.NoError(t, err)
	assert.Equal(t, "resolved", v)
}

func TestPostgresReopenKeepsMigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	again, err := storage.OpenPostgres(ctx, testDB.Pool().Config().ConnString(), testutil.TestLogger())
	require.NoError(t, err)
	defer func() { _ = again.Close() }()

	_, err = again.CountIncidents(ctx)
	require.NoError(t, err)
}
