// Command main runs the database seeder for the lounge backend.
package main

import (
	"flag"
	"log"

	"lounge/internal/config"
	"lounge/internal/database"
	"lounge/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 25, "Number of users to create")
	roomsPerOwner := flag.Int("rooms-per-owner", 1, "Rooms created per owning user")
	visitsPerUser := flag.Int("visits", 5, "Historical visits per user")
	password := flag.String("password", "lounge-dev-password", "Password for every seeded account")
	flag.Parse()

	log.Println("Database seeder")
	log.Printf("Target: %d users, %d rooms per owner, %d visits per user", *numUsers, *roomsPerOwner, *visitsPerUser)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := seed.Rooms(db); err != nil {
		log.Fatalf("Built-in room seeding failed: %v", err)
	}

	factory := seed.NewFactory(db, seed.Options{
		Users:           *numUsers,
		RoomsPerOwner:   *roomsPerOwner,
		VisitsPerUser:   *visitsPerUser,
		DefaultPassword: *password,
	})
	if err := factory.Run(); err != nil {
		log.Fatalf("Demo data seeding failed: %v", err)
	}

	log.Println("Done. All seeded accounts share the configured password.")
}
