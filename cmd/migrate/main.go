package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"voipms-gateway/internal/config"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// The gateway itself speaks database/sql; these models exist only to drive
// AutoMigrate and must stay in step with internal/adapters/db/postgres.

type installSecret struct {
	Name      string    `gorm:"primaryKey"`
	Secret    string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (installSecret) TableName() string { return "install_secrets" }

type lineState struct {
	DID        string         `gorm:"column:did;primaryKey"`
	MessageID  string         `gorm:"not null"`
	FromNumber string         `gorm:"not null"`
	Body       string         `gorm:"not null"`
	Media      pq.StringArray `gorm:"type:text[]"`
	ReceivedAt time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
}

func (lineState) TableName() string { return "line_states" }

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	fmt.Println("🔗 Connecting to database...")

	db, err := gorm.Open(postgres.Open(conf.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect: %v", err)
	}

	sqlDB, _ := db.DB()
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("❌ Failed to ping database: %v", err)
	}

	fmt.Println("✅ Connected to database")
	fmt.Println("🔄 Running migrations...")

	if err := db.AutoMigrate(&installSecret{}, &lineState{}); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	fmt.Println("✅ Migration complete!")
	fmt.Println("")
	fmt.Println("📊 Checking tables...")

	var tables []string
	db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public'").Scan(&tables)

	if len(tables) == 0 {
		fmt.Println("⚠️  No tables found")
		os.Exit(1)
	}

	fmt.Println("✅ Tables created:")
	for _, table := range tables {
		fmt.Printf("  - %s\n", table)
	}

	fmt.Println("")
	fmt.Println("🎉 Database ready!")
}
