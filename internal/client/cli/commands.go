package cli

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mlukins/cellar/internal/client/models"
)

func (a *App) list(ctx context.Context, entityType models.EntityType) {
	records, err := a.service.List(ctx, entityType)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if len(records) == 0 {
		fmt.Println("(empty)")
		return
	}
	for _, rec := range records {
		fmt.Printf("%s  %s\n", rec.ID, summarize(rec.Fields))
	}
}

func (a *App) get(ctx context.Context, args []string) {
	entityType, id, ok := entityArgs(args)
	if !ok {
		fmt.Println("Usage: get <type> <id>")
		return
	}
	rec, err := a.service.Get(ctx, entityType, id)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println("id:", rec.ID)
	for _, k := range keys {
		fmt.Printf("%s: %v\n", k, rec.Fields[k])
	}
}

func (a *App) del(ctx context.Context, args []string) {
	entityType, id, ok := entityArgs(args)
	if !ok {
		fmt.Println("Usage: del <type> <id>")
		return
	}
	if err := a.service.Delete(ctx, entityType, id); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("deleted")
}

func (a *App) add(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: add wine|bottle|tasting|location")
		return
	}
	entityType, ok := entityTypeOf(args[0])
	if !ok {
		fmt.Println("Unknown type:", args[0])
		return
	}

	var (
		rec *models.Record
		err error
	)
	switch entityType {
	case models.EntityWine:
		rec, err = a.service.AddWine(ctx, models.Wine{
			Name:     a.prompt("name"),
			Producer: a.prompt("producer"),
			Vintage:  a.promptInt("vintage"),
			Region:   a.prompt("region"),
			Grape:    a.prompt("grape"),
		})
	case models.EntityBottle:
		rec, err = a.service.AddBottle(ctx, models.Bottle{
			WineID:     a.prompt("wine id"),
			LocationID: a.prompt("location id (optional)"),
			SizeML:     a.promptInt("size (ml)"),
			Status:     models.BottleCellared,
		})
	case models.EntityTasting:
		rec, err = a.service.AddTasting(ctx, models.Tasting{
			WineID:   a.prompt("wine id"),
			Rating:   a.promptInt("rating (0-100)"),
			Notes:    a.prompt("notes"),
			TastedAt: a.prompt("tasted at (YYYY-MM-DD)"),
		})
	case models.EntityLocation:
		rec, err = a.service.AddLocation(ctx, models.Location{
			Name:        a.prompt("name"),
			Description: a.prompt("description"),
			Capacity:    a.promptInt("capacity"),
		})
	}
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("created:", rec.ID)
}

func (a *App) photo(ctx context.Context, args []string) {
	if len(args) != 3 {
		fmt.Println("Usage: photo <type> <id> <file>")
		return
	}
	entityType, ok := entityTypeOf(args[0])
	if !ok {
		fmt.Println("Unknown type:", args[0])
		return
	}

	payload, err := os.ReadFile(args[2])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	mimeType := mime.TypeByExtension(filepath.Ext(args[2]))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if err := a.service.AttachPhoto(ctx, entityType, args[1], payload, mimeType); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("photo attached")
}

func (a *App) photoURL(ctx context.Context, args []string) {
	entityType, id, ok := entityArgs(args)
	if !ok {
		fmt.Println("Usage: url <type> <id>")
		return
	}
	u, err := a.service.PhotoURL(ctx, entityType, id)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(u)
}

func entityArgs(args []string) (models.EntityType, string, bool) {
	if len(args) != 2 {
		return "", "", false
	}
	entityType, ok := entityTypeOf(args[0])
	if !ok {
		return "", "", false
	}
	return entityType, args[1], true
}

func (a *App) prompt(label string) string {
	fmt.Printf("%s: ", label)
	line, err := a.reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}

func (a *App) promptInt(label string) int {
	n, _ := strconv.Atoi(a.prompt(label))
	return n
}

func summarize(fields map[string]any) string {
	if name, ok := fields["name"].(string); ok && name != "" {
		return name
	}
	if wineID, ok := fields["wine_id"].(string); ok && wineID != "" {
		return "wine " + wineID
	}
	return ""
}
