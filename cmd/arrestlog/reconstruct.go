package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/arrestlog/internal/core/ocr"
	"github.com/joseph-ayodele/arrestlog/internal/export"
	"github.com/joseph-ayodele/arrestlog/internal/pipeline"
	"github.com/joseph-ayodele/arrestlog/internal/repository"
	"github.com/joseph-ayodele/arrestlog/internal/server"
	"github.com/joseph-ayodele/arrestlog/internal/source"
)

var (
	dirFlag      string
	bucketFlag   string
	prefixFlag   string
	strategyFlag string
	workersFlag  int
	csvPath      string
	xlsxPath     string
	jsonPath     string
	dbDSN        string
	watchFlag    bool
)

var reconstructCmd = &cobra.Command{
	Use:   "reconstruct",
	Short: "Rebuild records from a directory or bucket",
	Long: `Reads every document under the source in filename order, rebuilds
one record per arrest and writes the result to the requested outputs.

With no output flag a CSV named after the source prefix is written to the
current directory, e.g. --prefix bart/2017/ gives bart-2017.csv.`,
	Example: `  arrestlog reconstruct --dir ./ocr/2017 --xlsx 2017.xlsx
  arrestlog reconstruct --bucket ocr-out --prefix bart/2017/ --strategy fields --json out.json`,
	Args: cobra.NoArgs,
	RunE: runReconstruct,
}

func init() {
	f := reconstructCmd.Flags()
	f.StringVar(&dirFlag, "dir", "", "Directory of OCR output")
	f.StringVar(&bucketFlag, "bucket", "", "Bucket of OCR output (endpoint and keys from config or MINIO_* env)")
	f.StringVar(&prefixFlag, "prefix", "", "Object prefix inside --bucket")
	f.StringVar(&strategyFlag, "strategy", "", "blocks | fields (default from config)")
	f.IntVar(&workersFlag, "workers", 0, "Documents processed in parallel (default from config)")
	f.StringVar(&csvPath, "csv", "", "Write records as CSV")
	f.StringVar(&xlsxPath, "xlsx", "", "Write records and a run summary as XLSX")
	f.StringVar(&jsonPath, "json", "", "Write the nested JSON dump")
	f.StringVar(&dbDSN, "db", "", "Record the run in this database (postgres URL or sqlite file)")
	f.BoolVar(&watchFlag, "watch", false, "Keep running and rebuild whenever files under --dir change")
	reconstructCmd.MarkFlagsMutuallyExclusive("dir", "bucket")
	reconstructCmd.MarkFlagsMutuallyExclusive("watch", "bucket")
}

// driverFor guesses the driver from the DSN when the config leaves it open.
func driverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return repository.DriverPostgres
	}
	return repository.DriverSQLite
}

func runReconstruct(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if dirFlag != "" {
		cfg.Source.Dir = dirFlag
		cfg.Source.Bucket.Name = ""
	}
	if bucketFlag != "" {
		cfg.Source.Bucket.Name = bucketFlag
	}
	if cmd.Flags().Changed("prefix") {
		cfg.Source.Bucket.Prefix = prefixFlag
	}
	if workersFlag > 0 {
		cfg.Extract.Workers = workersFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if watchFlag && cfg.Source.Bucket.Name != "" {
		return fmt.Errorf("--watch needs a directory source")
	}

	extractor := ocr.NewExtractor(ocr.ConfigFrom(cfg.OCR), logger)
	src, err := source.FromConfig(cfg.Source, extractor, logger)
	if err != nil {
		return err
	}

	var sinks []export.RecordSink
	if csvPath != "" {
		sinks = append(sinks, export.NewCSVSink(csvPath, logger))
	}
	if xlsxPath != "" {
		sinks = append(sinks, export.NewXLSXSink(xlsxPath, logger))
	}
	if jsonPath != "" {
		sinks = append(sinks, export.NewJSONSink(jsonPath, logger))
	}
	if len(sinks) == 0 {
		name := source.OutputName(cfg.Source.Bucket.Prefix) + ".csv"
		sinks = append(sinks, export.NewCSVSink(name, logger))
	}
	opts := []pipeline.Option{pipeline.WithSinks(sinks...)}

	if dbDSN != "" {
		cfg.Database.DSN = dbDSN
		cfg.Database.Driver = driverFor(dbDSN)
		cfg.Database.AutoMigrate = true
	}
	if cfg.Database.DSN != "" {
		db, err := server.ConnectDB(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close(logger)
		opts = append(opts, pipeline.WithTracker(repository.NewRunRepository(db, logger)))
	}

	proc, err := pipeline.NewProcessor(cfg.Extract, logger, opts...)
	if err != nil {
		return err
	}
	if err := runOnce(cmd, proc, src, sinks); err != nil {
		return err
	}
	if !watchFlag {
		return nil
	}

	changed, err := source.Watch(ctx, source.WatchConfig{Root: cfg.Source.Dir, Extensions: cfg.Source.Extensions}, logger)
	if err != nil {
		return err
	}
	logger.Info("watching for changes", "dir", cfg.Source.Dir)
	for range changed {
		// a bad batch of files should not end the watch
		if err := runOnce(cmd, proc, src, sinks); err != nil {
			logger.Error("rebuild failed", "error", err)
		}
	}
	return nil
}

func runOnce(cmd *cobra.Command, proc *pipeline.Processor, src source.TextSource, sinks []export.RecordSink) error {
	res, err := proc.Run(cmd.Context(), src, strategyFlag)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d records from %d documents (%s)\n",
		res.RunID, len(res.Records), res.Documents, res.Strategy)
	for _, s := range sinks {
		fmt.Fprintln(cmd.OutOrStdout(), "  wrote", s.Name())
	}
	return nil
}
