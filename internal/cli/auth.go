package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/vendora/mediasync/internal/identity"
	"github.com/vendora/mediasync/internal/session"
)

// getSecret is an indirection used to facilitate testing.
var getSecret = GetSecret

// login reads an identity token from the terminal, validates it, and feeds
// the resulting identity into the session manager. Repeating the command for
// the identity that is already signed in is a no-op: the session is reused.
func (a *App) login(ctx context.Context) {
	token, err := getSecret("Paste identity token", os.Stdout)
	if err != nil {
		log.Println(err.Error())
		return
	}

	id, err := identity.ParseIDToken(string(token), a.secret)
	if err != nil {
		log.Printf("Token rejected: %s", err.Error())
		return
	}

	snap := a.session.OnIdentityEvent(ctx, id)
	switch snap.State {
	case session.StateReady:
		log.Printf("Signed in as %s (%s)", snap.Session.CanonicalProfileID, snap.Session.ProfileType)
	case session.StateError:
		log.Printf("Sign-in failed: %s", snap.Err.Error())
	}
}

func (a *App) logout(ctx context.Context) {
	a.session.OnIdentityEvent(ctx, nil)
	log.Println("Signed out")
}

func (a *App) whoami(ctx context.Context) {
	snap := a.session.CurrentSession()
	if snap.State != session.StateReady {
		fmt.Println("Not signed in:", snap.State)
		return
	}
	fmt.Printf("identity: %s\nprofile:  %s\ntype:     %s\n",
		snap.Session.IdentityID, snap.Session.CanonicalProfileID, snap.Session.ProfileType)
}
