package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-lifecycle/internal/container"
	"github.com/garyjia/barangay-lifecycle/internal/domain/entity"
	domainwf "github.com/garyjia/barangay-lifecycle/internal/domain/workflow"
	"github.com/garyjia/barangay-lifecycle/internal/infrastructure/export"
)

func newExportLedgerCmd(opts *rootOptions) *cobra.Command {
	var (
		out         string
		barangayID  string
		requestType string
		status      string
	)

	cmd := &cobra.Command{
		Use:   "export-ledger",
		Short: "Write requests and their transition history to an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			query := entity.RequestQuery{RequestFilter: entity.RequestFilter{
				Type:       domainwf.RequestType(requestType),
				Status:     domainwf.Status(status),
				BarangayID: barangayID,
			}}
			if query.Type != "" && !query.Type.IsValid() {
				return fmt.Errorf("invalid --type %q", requestType)
			}
			if query.Status != "" && !knownStatus(query.Type, query.Status) {
				return fmt.Errorf("invalid --status %q", status)
			}

			cc := cfg.ToContainerConfig()
			if cc.Storage != container.StorageSQLite {
				return fmt.Errorf("export-ledger requires the sqlite storage driver, got %q", cc.Storage)
			}
			cc.Database.AutoMigrate = false

			store, err := container.ProvideStore(cmd.Context(), cc, logger)
			if err != nil {
				return err
			}
			defer store.DB.Close()

			if out == "" {
				out = fmt.Sprintf("ledger-%s.xlsx", time.Now().Format("20060102-150405"))
			}

			exporter := export.NewLedgerExporter(store.Requests, store.History, logger.Named("export"))
			summary, err := exporter.ExportFile(cmd.Context(), query, out)
			if err != nil {
				return err
			}

			logger.Debug("Ledger export finished", zap.String("path", out))
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d request(s) and %d history row(s) to %s\n",
				summary.Requests, summary.History, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output .xlsx path (default ledger-<timestamp>.xlsx)")
	cmd.Flags().StringVar(&barangayID, "barangay", "", "Only export requests filed in this barangay")
	cmd.Flags().StringVar(&requestType, "type", "", "Only export requests of this type")
	cmd.Flags().StringVar(&status, "status", "", "Only export requests currently in this status")
	return cmd
}

// knownStatus reports whether s belongs to t's vocabulary, or to any vocabulary when t is empty
func knownStatus(t domainwf.RequestType, s domainwf.Status) bool {
	if t != "" {
		return s.ValidFor(t)
	}
	for _, rt := range domainwf.AllRequestTypes() {
		if s.ValidFor(rt) {
			return true
		}
	}
	return false
}
