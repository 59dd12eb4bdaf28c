package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vendora/mediasync/internal/filex"
	"github.com/vendora/mediasync/internal/models"
	"github.com/vendora/mediasync/internal/session"
)

// getSimpleText is an indirection used to facilitate testing.
var getSimpleText = GetSimpleText

// post queues a new media item. The source file is copied into the local
// spool first so the queue entry stays uploadable even if the user moves or
// deletes the original before sync.
func (a *App) post(ctx context.Context) {
	snap := a.session.CurrentSession()
	if snap.State != session.StateReady {
		fmt.Println("Sign in before posting")
		return
	}

	path, err := getSimpleText(a.reader, "Media file path", os.Stdout)
	if err != nil {
		log.Println(err.Error())
		return
	}

	kind, err := getSimpleText(a.reader, "Post to (feed/story)", os.Stdout)
	if err != nil {
		log.Println(err.Error())
		return
	}
	classification := models.Classification(kind)
	if !classification.Valid() {
		log.Printf("Unknown destination %q, expected feed or story", kind)
		return
	}

	caption, err := getSimpleText(a.reader, "Caption", os.Stdout)
	if err != nil {
		log.Println(err.Error())
		return
	}

	staged, err := filex.Stage(path, a.config.SpoolDir)
	if err != nil {
		log.Printf("Could not stage media: %s", err.Error())
		return
	}

	item := models.NewPendingMediaItem(staged, caption, snap.Session.CanonicalProfileID, classification, time.Now())
	id, err := a.queue.Enqueue(ctx, item)
	if err != nil {
		log.Printf("Could not queue item: %s", err.Error())
		return
	}

	fmt.Printf("Queued %s %s\n", classification, id)
}
