package db

import (
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	models "github.com/coachly/coachd/dbmodels"
)

func ConnectDB() *gorm.DB {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	database, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to Postgres:", err)
	}

	if err := database.AutoMigrate(
		&models.User{},
		&models.Agent{},
		&models.Conversation{},
		&models.Message{},
		&models.UserInsight{},
		&models.AssessmentResponse{},
		&models.FreeTrialUsage{},
		&models.KnowledgeDocument{},
		&models.KnowledgeChunk{},
	); err != nil {
		log.Fatal("Migration failed:", err)
	}

	return database
}
