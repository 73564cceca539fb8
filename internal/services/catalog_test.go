package services

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shoprec/pkg/models"
)

var productRowColumns = []string{
	"id", "tenant_id", "name", "price",
	"category_id", "category_name",
	"tags", "seasons",
	"image_url", "rating",
	"purchase_count", "view_count", "active",
}

func productRows() *pgxmock.Rows {
	return pgxmock.NewRows(productRowColumns).
		AddRow("p1", "t1", "Parka", 199.0, "outerwear", "Outerwear", []string{"warm"}, []string{"winter"}, "", 4.5, int64(40), int64(900), true).
		AddRow("p2", "t1", "Beanie", 19.0, "accessories", "Accessories", []string{}, []string{}, "https://cdn/beanie.png", 4.0, int64(12), int64(300), true)
}

func TestCatalogService_GetProducts(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	service := NewCatalogService(mockDB, testLogger())

	t.Run("returns products keyed by id", func(t *testing.T) {
		ids := []string{"p1", "p2", "missing"}
		mockDB.ExpectQuery("SELECT").
			WithArgs("t1", ids).
			WillReturnRows(productRows())

		products, err := service.GetProducts(context.Background(), "t1", ids)
		require.NoError(t, err)
		require.Len(t, products, 2)

		parka := products["p1"]
		assert.Equal(t, "Outerwear", parka.CategoryName)
		assert.Equal(t, []string{"winter"}, parka.Seasons)
		assert.Equal(t, int64(40), parka.PurchaseCount)
		assert.True(t, parka.Active)
		_, ok := products["missing"]
		assert.False(t, ok)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("no ids skips the query", func(t *testing.T) {
		products, err := service.GetProducts(context.Background(), "t1", nil)
		require.NoError(t, err)
		assert.Empty(t, products)
		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestCatalogService_Listings(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	service := NewCatalogService(mockDB, testLogger())
	ctx := context.Background()

	mockDB.ExpectQuery(`p.purchase_count \* \$2::double precision \+ p.view_count \* \$3::double precision`).
		WithArgs("t1", 10.0, 0.01, 5).
		WillReturnRows(productRows())
	popular, err := service.ListPopular(ctx, "t1", 10, 0.01, 5)
	require.NoError(t, err)
	assert.Len(t, popular, 2)

	mockDB.ExpectQuery("p.tags && \\$3").
		WithArgs("t1", []string{"outerwear"}, []string{"warm"}, 20).
		WillReturnRows(productRows())
	affinity, err := service.ListByAffinity(ctx, "t1", []string{"outerwear"}, []string{"warm"}, 20)
	require.NoError(t, err)
	assert.Equal(t, "p1", affinity[0].ID)

	mockDB.ExpectQuery("ANY\\(p.seasons\\)").
		WithArgs("t1", "winter", []string{"%coat%", "%scarf%"}, []string{"coat", "scarf"}, 10).
		WillReturnRows(productRows())
	seasonal, err := service.ListSeasonal(ctx, "t1", models.SeasonWinter, []string{"coat", "scarf"}, 10)
	require.NoError(t, err)
	assert.Len(t, seasonal, 2)

	none, err := service.ListByAffinity(ctx, "t1", nil, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, mockDB.ExpectationsWereMet())
}

func TestCatalogService_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	service := NewCatalogService(mockDB, testLogger())
	dbErr := errors.New("connection refused")

	for i := 0; i < 10; i++ {
		mockDB.ExpectQuery("SELECT").WithArgs("t1", 10.0, 0.01, 5).WillReturnError(dbErr)
	}
	for i := 0; i < 10; i++ {
		_, err := service.ListPopular(context.Background(), "t1", 10, 0.01, 5)
		require.ErrorIs(t, err, dbErr)
	}
	require.NoError(t, mockDB.ExpectationsWereMet())

	_, err = service.ListPopular(context.Background(), "t1", 10, 0.01, 5)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.NoError(t, mockDB.ExpectationsWereMet(), "open breaker must not reach the database")
}

func TestCatalogService_CancelledCallsDoNotTrip(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	service := NewCatalogService(mockDB, testLogger())

	for i := 0; i < 12; i++ {
		mockDB.ExpectQuery("SELECT").WithArgs("t1", 10.0, 0.01, 5).WillReturnError(context.Canceled)
	}
	for i := 0; i < 12; i++ {
		_, err := service.ListPopular(context.Background(), "t1", 10, 0.01, 5)
		require.ErrorIs(t, err, context.Canceled)
	}

	mockDB.ExpectQuery("SELECT").WithArgs("t1", 10.0, 0.01, 5).WillReturnRows(productRows())
	products, err := service.ListPopular(context.Background(), "t1", 10, 0.01, 5)
	require.NoError(t, err)
	assert.Len(t, products, 2)
}
