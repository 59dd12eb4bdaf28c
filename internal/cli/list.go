package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/vendora/mediasync/internal/models"
)

func (a *App) list(ctx context.Context, args []string) {
	status := models.StatusPending
	if len(args) > 0 {
		status = models.ItemStatus(args[0])
		if !status.Valid() {
			fmt.Println("Unknown status:", args[0])
			return
		}
	}

	items, err := a.queue.ListByStatus(ctx, status)
	if err != nil {
		log.Println(err.Error())
		return
	}

	for _, item := range items {
		line := fmt.Sprintf("%s  %-5s  %s", item.ID, item.Classification, item.Caption)
		if item.RetryCount > 0 {
			line += fmt.Sprintf("  (retries: %d)", item.RetryCount)
		}
		fmt.Println(line)
	}
	fmt.Printf("%d item(s) in status %s\n", len(items), status)
}

// review lists dead-lettered items together with their final error, so the
// user can decide what to delete or re-post.
func (a *App) review(ctx context.Context) {
	items, err := a.queue.ListByStatus(ctx, models.StatusDeadLettered)
	if err != nil {
		log.Println(err.Error())
		return
	}

	if len(items) == 0 {
		fmt.Println("Nothing to review")
		return
	}
	for _, item := range items {
		fmt.Printf("%s  %-5s  %s\n    %s\n", item.ID, item.Classification, item.Caption, item.LastError)
	}
}

func (a *App) sync(ctx context.Context) {
	n, err := a.coord.Drain(ctx)
	if err != nil {
		log.Println(err.Error())
	}
	fmt.Printf("Processed %d item(s)\n", n)
}

func (a *App) deleteItem(ctx context.Context, id string) {
	if err := a.queue.Delete(ctx, id); err != nil {
		log.Println(err.Error())
		return
	}
	fmt.Println("Deleted", id)
}
