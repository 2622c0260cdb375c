package repository

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgerflow/paylink/internal/models"
	"github.com/ledgerflow/paylink/pkg/database"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations("../../migrations"))

	return db
}

func makeInvoice(number string) *models.Invoice {
	return &models.Invoice{
		Number:        number,
		WorkspaceID:   "ws_1",
		CustomerID:    "cus_1",
		CustomerEmail: "billing@acme.test",
		Currency:      "usd",
		Subtotal:      decimal.NewFromInt(1000),
		Total:         decimal.NewFromInt(1000),
		Status:        models.InvoiceStatusDraft,
		LineItems: []models.LineItem{
			{Description: "Design services", Quantity: 2, UnitPrice: decimal.NewFromInt(300)},
			{Description: "Build sprint", Quantity: 1, UnitPrice: decimal.NewFromInt(400)},
		},
	}
}
