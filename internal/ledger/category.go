package ledger

import (
	"strings"

	"stockdesk-backend/internal/models"
)

// Category is derived from a unit snapshot and never stored.
type Category string

const (
	CategoryPhone     Category = "phone"
	CategoryAccessory Category = "accessory"
	CategoryUnknown   Category = "unknown"
)

var accessoryKeywords = []string{
	"cargador", "cable", "charger", "accesorio", "buds", "cubos", "watch", "audifono",
	"audífono", "auricular", "band", "tablet", "case", "funda", "powerbank", "bateria",
	"estuche", "adaptador", "manos libres", "usb", "protector", "soporte", "dock", "bocina",
	"speaker", "parlante", "kit", "combo",
}

// Categorize classifies a unit: accessory keywords in brand or model win, then a
// unit without an IMEI is an accessory (serial-tracked, or any model text with
// no IMEI), then an IMEI longer than 6 chars is a phone.
func Categorize(u *models.Unit) Category {
	model := strings.ToLower(strings.TrimSpace(u.Model))
	brand := strings.ToLower(strings.TrimSpace(u.Brand))
	for _, kw := range accessoryKeywords {
		if strings.Contains(model, kw) || strings.Contains(brand, kw) {
			return CategoryAccessory
		}
	}
	if u.IdentifierKind == models.IdentifierSerial {
		return CategoryAccessory
	}
	if strings.TrimSpace(u.Identifier) == "" && model != "" {
		return CategoryAccessory
	}
	if len(strings.TrimSpace(u.Identifier)) > 6 {
		return CategoryPhone
	}
	return CategoryUnknown
}
