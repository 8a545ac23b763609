// Package main provides admin management utilities for the lounge backend.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"lounge/internal/config"
	"lounge/internal/database"
	"lounge/internal/models"

	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  go run ./cmd/admin/main.go promote <user_id>      - Promote user to administrator")
		fmt.Println("  go run ./cmd/admin/main.go demote <user_id>       - Demote user to regular account")
		fmt.Println("  go run ./cmd/admin/main.go elevate <user_id>      - Grant elevated standing")
		fmt.Println("  go run ./cmd/admin/main.go list-admins            - List all administrators")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	command := os.Args[1]

	switch command {
	case "promote":
		requireUserArg()
		setRole(db, os.Args[2], models.RoleAdministrator)

	case "demote":
		requireUserArg()
		setRole(db, os.Args[2], models.RoleUser)

	case "elevate":
		requireUserArg()
		setElevated(db, os.Args[2], true)

	case "list-admins":
		listAdmins(db)

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func requireUserArg() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run ./cmd/admin/main.go <command> <user_id>")
		os.Exit(1)
	}
}

func loadUser(db *gorm.DB, userID string) *models.User {
	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fmt.Printf("User with ID %s not found\n", userID)
		} else {
			log.Fatalf("Database error: %v", err)
		}
		os.Exit(1)
	}
	return &user
}

func setRole(db *gorm.DB, userID string, role models.Role) {
	user := loadUser(db, userID)

	if user.Role == role {
		fmt.Printf("User %s (ID: %d) already has role %s\n", user.Username, user.ID, role)
		return
	}

	user.Role = role
	if err := db.Save(user).Error; err != nil {
		log.Fatalf("Failed to update role: %v", err)
	}

	fmt.Printf("User %s (ID: %d) is now %s\n", user.Username, user.ID, role)
}

func setElevated(db *gorm.DB, userID string, elevated bool) {
	user := loadUser(db, userID)

	user.Elevated = elevated
	if err := db.Save(user).Error; err != nil {
		log.Fatalf("Failed to update elevated standing: %v", err)
	}

	fmt.Printf("User %s (ID: %d) elevated=%v\n", user.Username, user.ID, elevated)
}

func listAdmins(db *gorm.DB) {
	var admins []models.User
	if err := db.Where("role = ?", models.RoleAdministrator).Find(&admins).Error; err != nil {
		log.Fatalf("Failed to fetch administrators: %v", err)
	}

	if len(admins) == 0 {
		fmt.Println("No administrators found in the system")
		return
	}

	fmt.Println("\nCurrent administrators:")
	fmt.Println("-------------------------------------")
	for _, admin := range admins {
		fmt.Printf("ID: %d | Username: %s | Email: %s\n", admin.ID, admin.Username, admin.Email)
	}
	fmt.Println("-------------------------------------")
}
