package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/config"
	"github.com/edukinara/happybar-sub000/internal/counting"
	"github.com/edukinara/happybar-sub000/internal/database"
	"github.com/edukinara/happybar-sub000/internal/models"
)

type demoProduct struct {
	id, name, unit string
	stock, par     float64
	counted        float64
}

var demo = map[string][]demoProduct{
	"Back Bar": {
		{"p-vodka", "House Vodka 1L", "bottle", 6, 8, 5.4},
		{"p-gin", "London Dry Gin 700ml", "bottle", 4, 6, 4.2},
		{"p-rum", "White Rum 1L", "bottle", 3, 4, 2.5},
	},
	"Walk-in Cooler": {
		{"p-lager", "Lager Keg 50L", "keg", 2, 3, 1.6},
		{"p-lime", "Limes", "case", 1, 2, 0.5},
	},
	"Dry Storage": {
		{"p-syrup", "Simple Syrup 1L", "bottle", 12, 10, 12},
	},
}

var areaOrder = []string{"Back Bar", "Walk-in Cooler", "Dry Storage"}

func main() {
	fmt.Println("🌱 Happy Bar Demo Count Seeder")
	fmt.Println("════════════════════════════════════════════════════════════")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := database.Connect(cfg.Database, zap.NewNop())
	if err != nil {
		fmt.Printf("❌ Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := counting.NewRepository(db.DB)
	if err := repo.Migrate(); err != nil {
		fmt.Printf("❌ Migration failed: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	snap, err := repo.Load(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to load counts: %v\n", err)
		os.Exit(1)
	}
	if len(snap.Sessions) > 0 {
		fmt.Printf("⚠️  Database already has %d sessions. Seed anyway? (y/N): ", len(snap.Sessions))
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("❌ Aborted. Database not modified.")
			return
		}
	}

	// local store only: the demo never talks to the backend
	store := counting.NewStore(zap.NewNop(), counting.WithPersister(repo))
	store.Restore(snap)

	sess := store.CreateCountSession(counting.SessionInput{
		Name:         "Demo Weekly Count",
		Type:         models.CountTypeFull,
		LocationName: "Main Bar",
		StorageAreas: areaOrder,
	})
	fmt.Printf("✅ Session %s created\n", sess.ID)

	// count the first two areas, leave the last one open
	for _, area := range areaOrder[:2] {
		for _, p := range demo[area] {
			if _, _, err := store.SaveCount(ctx, counting.SaveCountInput{
				ProductID:       p.id,
				ProductName:     p.name,
				Unit:            p.unit,
				CurrentStock:    p.stock,
				CountedQuantity: p.counted,
				ParLevel:        p.par,
			}); err != nil {
				fmt.Printf("❌ Failed to save %s: %v\n", p.name, err)
				os.Exit(1)
			}
		}
		if _, err := store.CompleteCurrentArea(ctx, sess.ID); err != nil {
			fmt.Printf("⚠️  Completing %s: %v\n", area, err)
		}
		fmt.Printf("   └─ %s: %d products counted\n", area, len(demo[area]))
	}

	p := store.GetAreaProgress(sess.ID)
	fmt.Println()
	fmt.Printf("🎉 Done. Area %d of %d in progress.\n", p.Current(), p.Total)
}
