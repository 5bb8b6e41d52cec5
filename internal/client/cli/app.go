// Package cli is the interactive shell over the cellar service. It is the
// only consumer of the service facade in this binary; all sync machinery
// runs in the background regardless of what the shell is doing.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/mlukins/cellar/internal/client/models"
	"github.com/mlukins/cellar/internal/client/monitor"
	"github.com/mlukins/cellar/internal/client/services"
)

type App struct {
	service *services.CellarService
	status  atomic.Value // monitor.Status
	reader  *bufio.Reader
}

func NewApp(service *services.CellarService) *App {
	a := &App{service: service, reader: bufio.NewReader(os.Stdin)}
	a.status.Store(monitor.StatusOffline)
	return a
}

// SetStatus receives connectivity updates from the monitor. Safe to call
// from the monitor goroutine while the REPL reads stdin.
func (a *App) SetStatus(s monitor.Status) {
	a.status.Store(s)
}

func (a *App) Run(ctx context.Context) {
	fmt.Println("cellar (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("cellar [%s] > ", a.status.Load())
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			a.printHelp()
		case "wines", "bottles", "tastings", "locations":
			a.list(ctx, models.EntityType(cmd))
		case "add":
			a.add(ctx, args)
		case "get":
			a.get(ctx, args)
		case "del":
			a.del(ctx, args)
		case "photo":
			a.photo(ctx, args)
		case "url":
			a.photoURL(ctx, args)
		case "status":
			a.printStatus(ctx)
		case "sync":
			if err := a.service.Sync(ctx); err != nil {
				fmt.Println("sync failed:", err)
			} else {
				fmt.Println("sync done")
			}
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Println("Unknown command:", cmd)
		}
	}
}

func (a *App) printHelp() {
	fmt.Println(`Available commands:
  wines | bottles | tastings | locations   list records
  add wine|bottle|tasting|location         create a record
  get <type> <id>                          show one record
  del <type> <id>                          delete a record
  photo <type> <id> <file>                 attach a photo
  url <type> <id>                          resolve a record's photo URL
  status                                   connectivity and pending counts
  sync                                     force a drain now
  exit`)
}

func (a *App) printStatus(ctx context.Context) {
	fmt.Println("mode:", a.status.Load())
	for _, kind := range []services.OutboxKind{services.OutboxMutations, services.OutboxPhotos} {
		pending, _ := a.service.PendingCount(ctx, kind)
		failed, _ := a.service.FailedCount(ctx, kind)
		fmt.Printf("%s: %d pending, %d need attention\n", kind, pending, failed)
		if lastErr, _ := a.service.LastSyncError(ctx, kind); lastErr != nil {
			fmt.Printf("  last error: %v\n", lastErr)
		}
	}
}

// entityTypeOf resolves the singular/plural forms users type to an entity
// kind.
func entityTypeOf(s string) (models.EntityType, bool) {
	switch s {
	case "wine", "wines":
		return models.EntityWine, true
	case "bottle", "bottles":
		return models.EntityBottle, true
	case "tasting", "tastings":
		return models.EntityTasting, true
	case "location", "locations":
		return models.EntityLocation, true
	}
	return "", false
}
