package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/database"
	"github.com/travigo/vehiclehistory/pkg/store"
	"github.com/travigo/vehiclehistory/pkg/store/storetest"
)

func TestPostgresStore(t *testing.T) {
	connectionString := os.Getenv("TRAVIGO_TEST_POSTGRES_CONNECTION")
	if connectionString == "" {
		t.Skip("TRAVIGO_TEST_POSTGRES_CONNECTION not set")
	}

	db, err := database.ConnectPostgres(connectionString)
	require.NoError(t, err)

	s, err := New(db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Migrator().DropTable(&ctdf.PositionRecord{})
		s.Close(context.Background())
	})

	storetest.RunContractTests(t, func(t *testing.T) store.Store {
		require.NoError(t, db.Exec("TRUNCATE TABLE vehicle_locations").Error)
		return &keepOpenStore{s}
	})
}

type keepOpenStore struct {
	*Store
}

func (s *keepOpenStore) Close(ctx context.Context) error {
	return nil
}
