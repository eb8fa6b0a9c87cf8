package main

import (
	"insight-qa-go/internal/model"
	"insight-qa-go/pkg/database"
	"insight-qa-go/pkg/log"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the MySQL tables for ingestion audits and interview reports",
	RunE:  runMigrate,
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg := setup()
	defer log.Sync()

	if err := database.InitMySQL(cfg.Database.MySQL); err != nil {
		return err
	}
	if err := database.AutoMigrate(&model.IngestionRecord{}, &model.InterviewReportRecord{}); err != nil {
		return err
	}
	log.Info("数据库迁移完成")
	return nil
}
