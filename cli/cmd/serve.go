package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"relayflow/incident"
	"relayflow/server"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server exposing the incident pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := server.LoadConfig(serveConfigPath)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}

		logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

		graph, err := incident.BuildPipeline(cfg.Collaborators())
		if err != nil {
			return fmt.Errorf("error building pipeline: %w", err)
		}

		srv := server.New(graph, logger)

		g := gin.Default()
		srv.Routes(g)

		logger.Info("listening", "addr", cfg.Addr)
		httpServer := &http.Server{
			Addr:         cfg.Addr,
			Handler:      g,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}
		return httpServer.ListenAndServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "path to YAML config file")
}
