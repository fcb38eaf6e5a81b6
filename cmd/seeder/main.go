// cmd/seeder/main.go
package main

import (
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/b2stos/nexuszap-sub000/internal/config"
	"github.com/b2stos/nexuszap-sub000/internal/db"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	if err := godotenv.Load(); err != nil {
		log.Info("no .env file, using OS environment")
	}
	cfg := config.Load()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer database.Close()

	files := []string{
		"seed/schema.sql",
		"seed/seed.sql",
	}
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatal("reading seed file failed", zap.String("file", file), zap.Error(err))
		}
		if _, err := database.Exec(string(content)); err != nil {
			log.Fatal("executing seed file failed", zap.String("file", file), zap.Error(err))
		}
		log.Info("applied", zap.String("file", file))
	}

	log.Info("seeding complete")
}
