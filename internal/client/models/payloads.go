package models

import (
	"github.com/go-playground/validator/v10"
)

// validate is shared by all payload types; validator instances cache struct
// metadata and are safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Wine is a catalog entry: one wine as listed, independent of how many
// physical bottles of it exist.
type Wine struct {
	Name     string `json:"name" validate:"required"`
	Producer string `json:"producer" validate:"required"`
	Vintage  int    `json:"vintage" validate:"omitempty,gte=1800,lte=2100"`
	Region   string `json:"region"`
	Grape    string `json:"grape"`
	Notes    string `json:"notes"`
}

func (w Wine) Validate() error { return validate.Struct(w) }

func (w Wine) FieldMap() map[string]any {
	return map[string]any{
		"name":     w.Name,
		"producer": w.Producer,
		"vintage":  w.Vintage,
		"region":   w.Region,
		"grape":    w.Grape,
		"notes":    w.Notes,
	}
}

// BottleStatus tracks what happened to a physical bottle.
type BottleStatus string

const (
	BottleCellared BottleStatus = "cellared"
	BottleDrunk    BottleStatus = "drunk"
	BottleGifted   BottleStatus = "gifted"
)

// Bottle is a physical unit of a catalog wine, optionally placed in a
// storage location. WineID and LocationID may be temporary ids while the
// referenced records have not synced yet.
type Bottle struct {
	WineID        string       `json:"wine_id" validate:"required"`
	LocationID    string       `json:"location_id"`
	SizeML        int          `json:"size_ml" validate:"omitempty,gt=0"`
	PurchasePrice float64      `json:"purchase_price" validate:"omitempty,gte=0"`
	Status        BottleStatus `json:"status" validate:"omitempty,oneof=cellared drunk gifted"`
}

func (b Bottle) Validate() error { return validate.Struct(b) }

func (b Bottle) FieldMap() map[string]any {
	m := map[string]any{
		"wine_id":        b.WineID,
		"size_ml":        b.SizeML,
		"purchase_price": b.PurchasePrice,
		"status":         string(b.Status),
	}
	if b.LocationID != "" {
		m["location_id"] = b.LocationID
	}
	return m
}

// Tasting is one tasting record for a catalog wine.
type Tasting struct {
	WineID   string `json:"wine_id" validate:"required"`
	Rating   int    `json:"rating" validate:"gte=0,lte=100"`
	Notes    string `json:"notes"`
	TastedAt string `json:"tasted_at" validate:"omitempty,datetime=2006-01-02"`
}

func (t Tasting) Validate() error { return validate.Struct(t) }

func (t Tasting) FieldMap() map[string]any {
	return map[string]any{
		"wine_id":   t.WineID,
		"rating":    t.Rating,
		"notes":     t.Notes,
		"tasted_at": t.TastedAt,
	}
}

// Location is a storage location (rack, shelf, crate).
type Location struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Capacity    int    `json:"capacity" validate:"omitempty,gt=0"`
}

func (l Location) Validate() error { return validate.Struct(l) }

func (l Location) FieldMap() map[string]any {
	return map[string]any{
		"name":        l.Name,
		"description": l.Description,
		"capacity":    l.Capacity,
	}
}
