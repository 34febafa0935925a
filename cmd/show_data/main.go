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

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := database.Connect(cfg.Database, zap.NewNop())
	if err != nil {
		fmt.Printf("❌ Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := counting.NewRepository(db.DB)
	if err := repo.Migrate(); err != nil {
		fmt.Printf("❌ Migration failed: %v\n", err)
		os.Exit(1)
	}
	snap, err := repo.Load(context.Background())
	if err != nil {
		fmt.Printf("❌ Failed to load counts: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║              📊 Happy Bar Count Data Report               ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	unsynced := 0
	for _, it := range snap.Items {
		if !it.Synced {
			unsynced++
		}
	}

	fmt.Println("📈 STATISTICS")
	fmt.Println("──────────────────────────────────────────────────────────")
	fmt.Printf("  Sessions:        %3d\n", len(snap.Sessions))
	fmt.Printf("  Count items:     %3d\n", len(snap.Items))
	fmt.Printf("  Unsynced items:  %3d\n", unsynced)
	if snap.ActiveSessionID != nil {
		fmt.Printf("  Active session:  %s\n", *snap.ActiveSessionID)
	}
	fmt.Println()

	for _, sess := range snap.Sessions {
		printSession(sess, snap.Items)
	}

	var adHoc []*models.CountItem
	for _, it := range snap.Items {
		if it.CountSessionID == nil {
			adHoc = append(adHoc, it)
		}
	}
	if len(adHoc) > 0 {
		fmt.Println("📝 AD-HOC COUNTS")
		fmt.Println("──────────────────────────────────────────────────────────")
		for _, it := range adHoc {
			printItem(it, "  ")
		}
		fmt.Println()
	}
}

func printSession(sess *models.CountSession, items []*models.CountItem) {
	remote := "local only"
	if sess.Synced() {
		remote = "backend " + *sess.APIID
	}
	fmt.Printf("📋 %s [%s, %s] (%s)\n", sess.Name, sess.Type, sess.Status, remote)
	fmt.Println("──────────────────────────────────────────────────────────")
	fmt.Printf("  Items: %d | Total variance: %.2f\n", sess.TotalItems, sess.TotalVariance)

	for _, a := range sess.Areas {
		marker := "  "
		if sess.CurrentAreaID != nil && *sess.CurrentAreaID == a.ID {
			marker = "▶ "
		}
		pending := ""
		if a.PendingSync {
			pending = " (not acknowledged)"
		}
		fmt.Printf("  %s%d. %s: %s%s\n", marker, a.Order+1, a.Name, a.Status, pending)
		for _, it := range items {
			if it.InSession(sess.ID) && it.AreaID != nil && *it.AreaID == a.ID {
				printItem(it, "       ")
			}
		}
	}
	fmt.Println()
}

func printItem(it *models.CountItem, indent string) {
	name := it.ProductName
	if name == "" {
		name = it.ProductID
	}
	sync := "✓"
	if !it.Synced {
		sync = "…"
	}
	fmt.Printf("%s└─ %s %s: %.2f %s (expected %.2f, variance %+.2f)\n",
		indent, sync, name, it.CountedQuantity, it.Unit, it.CurrentStock, it.Variance)
}
