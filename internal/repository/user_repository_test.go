package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusworks/artforge/internal/models"
)

func TestUserFind(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "email", "display_name", "credits", "tier", "billing_customer_id", "created_at", "updated_at"}).
		AddRow("user-1", "user@example.com", "User One", 7, "free", "", now, now)
	mock.ExpectQuery("SELECT id, email").WithArgs("user-1").WillReturnRows(rows)

	repo := NewUserRepository(db)
	profile, err := repo.Find(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, 7, profile.Credits)
	assert.Equal(t, models.TierFree, profile.Tier)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserFindMissingReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, email").WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "display_name", "credits", "tier", "billing_customer_id", "created_at", "updated_at"}))

	repo := NewUserRepository(db)
	profile, err := repo.Find(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, profile)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementCreditsConditional(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		want         bool
	}{
		{name: "sufficient balance", rowsAffected: 1, want: true},
		{name: "insufficient balance leaves row untouched", rowsAffected: 0, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET credits = credits - ?, updated_at = NOW()\nWHERE id = ? AND credits >= ?")).
				WithArgs(3, "user-1", 3).
				WillReturnResult(sqlmock.NewResult(0, tc.rowsAffected))

			repo := NewUserRepository(db)
			ok, err := repo.DecrementCredits(context.Background(), "user-1", 3)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAddCredits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET credits = credits + ?, updated_at = NOW() WHERE id = ?")).
		WithArgs(50, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewUserRepository(db)
	require.NoError(t, repo.AddCredits(context.Background(), "user-1", 50))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePartialFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET display_name = NULLIF(?, ''), tier = ?, updated_at = NOW() WHERE id = ?")).
		WithArgs("New Name", "premium-monthly", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewUserRepository(db)
	name := "New Name"
	tier := models.TierPremiumMonthly
	require.NoError(t, repo.Update(context.Background(), "user-1", models.ProfileUpdate{
		DisplayName: &name,
		Tier:        &tier,
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateNoFieldsIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewUserRepository(db)
	require.NoError(t, repo.Update(context.Background(), "user-1", models.ProfileUpdate{}))
	require.NoError(t, mock.ExpectationsWereMet())
}
