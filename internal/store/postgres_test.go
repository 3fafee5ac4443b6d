package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunscout/installer-cli/internal/model"
)

func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgres_FindBySourceID_EmptyShortCircuits(t *testing.T) {
	s, mock := newMockStore(t)

	got, err := s.FindBySourceID(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindBySourceID(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	sourceID := "node/100"

	cols := []string{
		"id", "source_id", "name", "latitude", "longitude", "street", "city", "state",
		"zip_code", "phone", "website", "total_reviews", "years_in_business",
		"last_seen_at", "last_enriched_at", "created_at",
	}
	mock.ExpectQuery("SELECT .+ FROM installers WHERE source_id").
		WithArgs(sourceID).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(
			"id-1", &sourceID, "Sunny Side Solar", 30.2672, -97.7431, "", "Austin", "TX",
			"78701", "", "", 0, 0, now, nil, now,
		))
	mock.ExpectQuery("SELECT slug FROM installer_specialties").
		WithArgs("id-1").
		WillReturnRows(pgxmock.NewRows([]string{"slug"}).AddRow("battery_backup"))

	got, err := s.FindBySourceID(context.Background(), sourceID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "id-1", got.ID)
	assert.Equal(t, "node/100", got.SourceID)
	assert.Equal(t, []string{"battery_backup"}, got.Specialties)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AppendScanLog(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO scan_log").
		WithArgs(anyArgs(6)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	entry := &model.ScanLogEntry{
		Source:  "discovery",
		Status:  model.ScanStatusOK,
		Message: "42 candidates",
	}
	require.NoError(t, s.AppendScanLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateInstaller_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE installers SET").
		WithArgs(anyArgs(16)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateInstaller(context.Background(), &model.Installer{ID: "missing", Name: "X"})
	assert.ErrorContains(t, err, "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SeedSpecialtyTags(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO specialty_tags").
		WithArgs(anyArgs(2)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SeedSpecialtyTags(context.Background(), map[string]string{
		"battery_backup": "Battery & Backup Power",
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ReplaceSpecialties(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM installer_specialties").
		WithArgs("id-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO installer_specialties").
		WithArgs("id-1", "residential_pv").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.ReplaceSpecialties(context.Background(), "id-1", []string{"residential_pv"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateInstaller_Error(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO installers").
		WithArgs(anyArgs(17)...).
		WillReturnError(errors.New("unique violation"))

	err := s.CreateInstaller(context.Background(), &model.Installer{Name: "Dup Co"})
	assert.ErrorContains(t, err, "unique violation")
	assert.NoError(t, mock.ExpectationsWereMet())
}
