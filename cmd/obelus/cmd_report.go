package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"obelus/internal/logging"
	"obelus/internal/report"
	"obelus/internal/store"
)

var reportFlags struct {
	db       string
	launchID string
	serve    string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a launch report as Markdown, or serve reports over HTTP",
	Long: `Without --serve, assembles the launch's jobs and step results into a
Markdown report on stdout. With --serve, starts an HTTP viewer for every
recorded launch instead.`,
	RunE: runReport,
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportFlags.db, "db", store.DefaultDBPath, "Launch store path")
	f.StringVarP(&reportFlags.launchID, "launch", "l", "", "Launch id (or unique prefix); required unless --serve is set")
	f.StringVar(&reportFlags.serve, "serve", "", "Serve reports over HTTP on this address (e.g. :8998)")
}

func runReport(cmd *cobra.Command, _ []string) error {
	st, err := store.Open(reportFlags.db)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if reportFlags.serve != "" {
		log := logging.New("report")
		srv := &http.Server{
			Addr:    reportFlags.serve,
			Handler: report.NewServer(st, log),
		}
		log.Info("serving launch reports", "addr", reportFlags.serve)
		return srv.ListenAndServe()
	}

	if reportFlags.launchID == "" {
		return fmt.Errorf("--launch is required without --serve")
	}
	l, err := resolveLaunch(st, reportFlags.launchID)
	if err != nil {
		return err
	}
	data, err := report.Assemble(st, l.ID)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), data.Markdown())
	return nil
}
