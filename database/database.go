package database

import (
	"fmt"
	"log"

	config "github.com/mainamwangi/soko_chat/configs"
	"github.com/mainamwangi/soko_chat/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func ConnectDB() {
	var err error
	dsn := config.Config("DATABASE_URL")

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		DisableNestedTransaction:                 true,
	})
	if err != nil {
		log.Fatalf("🔥 Failed to connect to database: %v", err)
	}

	fmt.Println("✅ Database connected successfully")
}

func Migrate() {
	err := DB.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.Message{},
	)
	if err != nil {
		log.Fatalf("🔥 Failed to migrate database: %v", err)
	}
	fmt.Println("✅ Database migration successful")
}

// SeedDemo creates a merchant, a buyer and one listing so a fresh
// environment has something to message about. Controlled by
// SEED_DEMO_DATA=true; does nothing once users exist.
func SeedDemo() {
	if config.Config("SEED_DEMO_DATA") != "true" {
		return
	}

	var count int64
	if err := DB.Model(&models.User{}).Count(&count).Error; err != nil {
		log.Fatalf("🔥 Failed to check for existing users: %v", err)
		return
	}
	if count > 0 {
		log.Println("Demo data already seeded.")
		return
	}

	merchant := models.User{FullName: "Wanjiku Electronics", Role: models.RoleMerchant}
	buyer := models.User{FullName: "Brian Otieno", Role: models.RoleBuyer}
	if err := DB.Create(&merchant).Error; err != nil {
		log.Fatalf("🔥 Failed to seed merchant: %v", err)
		return
	}
	if err := DB.Create(&buyer).Error; err != nil {
		log.Fatalf("🔥 Failed to seed buyer: %v", err)
		return
	}

	listing := models.Listing{
		SellerID: merchant.ID,
		Title:    "Refurbished ThinkPad T480",
		Price:    42000,
		Currency: "KES",
	}
	if err := DB.Create(&listing).Error; err != nil {
		log.Fatalf("🔥 Failed to seed listing: %v", err)
		return
	}

	log.Println("✅ Demo marketplace data seeded successfully")
}
