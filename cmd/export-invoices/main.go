package main

import (
	"fmt"
	"log"
	"os"

	"github.com/ledgerflow/paylink/internal/config"
	"github.com/ledgerflow/paylink/internal/export"
	"github.com/ledgerflow/paylink/internal/models"
	"github.com/ledgerflow/paylink/internal/repository"
	"github.com/ledgerflow/paylink/pkg/database"
	"github.com/ledgerflow/paylink/pkg/logging"
)

// Exports the invoice register to an Excel workbook for bookkeeping.
// Usage: export-invoices [output.xlsx]

const listPageSize = 100

func main() {
	outputPath := "invoice_register.xlsx"
	if len(os.Args) > 1 {
		outputPath = os.Args[1]
	}

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:      "warn",
		OutputPath: "stderr",
		Format:     "console",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	invoiceRepo := repository.NewInvoiceRepository(db.DB, logger)
	paymentRepo := repository.NewPaymentRepository(db.DB, logger)

	fmt.Println("Collecting invoices...")
	invoices, err := collectInvoices(invoiceRepo)
	if err != nil {
		log.Fatalf("Failed to list invoices: %v", err)
	}

	payments := make(map[string][]*models.Payment, len(invoices))
	for _, invoice := range invoices {
		rows, err := paymentRepo.ListByInvoice(invoice.ID)
		if err != nil {
			log.Fatalf("Failed to list payments for %s: %v", invoice.Number, err)
		}
		payments[invoice.ID] = rows
	}

	writer := export.NewWriter(logger)
	if err := writer.WriteRegister(outputPath, invoices, payments); err != nil {
		log.Fatalf("Failed to write register: %v", err)
	}

	fmt.Printf("Wrote %d invoices to %s\n", len(invoices), outputPath)
}

func collectInvoices(repo *repository.InvoiceRepository) ([]*models.Invoice, error) {
	var all []*models.Invoice
	for offset := 0; ; offset += listPageSize {
		page, err := repo.List(listPageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < listPageSize {
			return all, nil
		}
	}
}
