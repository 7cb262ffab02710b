package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quintlabs/payment-reconciliation/internal/reconcile/domain"
	pg "github.com/quintlabs/payment-reconciliation/internal/reconcile/infrastructure/postgres"
	"github.com/quintlabs/payment-reconciliation/pkg/logging"
)

func TestRepositoryInsertIfAbsent(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test, requires docker")
	}

	ctx := context.Background()
	env, err := Setup(ctx)
	require.NoError(t, err)
	defer env.Teardown(ctx)

	pool, err := pgxpool.New(ctx, env.PGURL)
	require.NoError(t, err)
	defer pool.Close()

	schema, err := os.ReadFile(filepath.Join("..", "..", "internal", "reconcile", "infrastructure", "postgres", "schema.sql"))
	require.NoError(t, err)
	for _, stmt := range strings.Split(string(schema), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err = pool.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	repo := pg.NewRepository(logging.New(), pool)

	order := domain.Order{
		ID:          "ord_it_1",
		PaymentID:   "pay_it_1",
		AmountMinor: 240000,
		Items:       []domain.LineItem{{Name: "Kajal", Quantity: 2, PriceMinor: 45000}},
		Customer:    domain.Customer{FirstName: "Asha", Email: "asha@example.com"},
		Status:      domain.StatusPaid,
		CreatedAt:   time.Now().UTC(),
	}

	inserted, err := repo.InsertIfAbsent(ctx, order, "OrderReconciled", []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertIfAbsent(ctx, order, "OrderReconciled", []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, inserted, "the same order id must not insert twice")

	got, found, err := repo.FindByOrderID(ctx, "ord_it_1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "pay_it_1", got.PaymentID)
	assert.Len(t, got.Items, 1)

	recent, err := repo.RecentByEmail(ctx, "asha@example.com", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	mirrored, err := repo.AppendToUserHistory(ctx, "acct_1", got)
	require.NoError(t, err)
	assert.True(t, mirrored)

	mirrored, err = repo.AppendToUserHistory(ctx, "acct_1", got)
	require.NoError(t, err)
	assert.False(t, mirrored, "re-linking must not duplicate the mirror")
}
