package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Category is one of the fixed expense categories.
type Category string

const (
	CategoryFood          Category = "food"
	CategoryTransport     Category = "transport"
	CategoryHealth        Category = "health"
	CategoryEntertainment Category = "entertainment"
	CategoryUtilities     Category = "utilities"
	CategoryShopping      Category = "shopping"
	CategoryEducation     Category = "education"
	CategoryHome          Category = "home"
	CategoryOther         Category = "other"
)

// CategoryInfo is the static display metadata attached to a category.
// WireTag is the Spanish tag the extraction prompts ask the model for.
type CategoryInfo struct {
	Category Category `json:"category"`
	WireTag  string   `json:"wire_tag"`
	Emoji    string   `json:"emoji"`
	Label    string   `json:"label"`
	Hint     string   `json:"-"`
}

// Categories lists every category in display order. Prompts, the normalizer
// and the formatter all read from this table.
var Categories = []CategoryInfo{
	{CategoryFood, "alimentacion", "🍔", "Alimentación", "comida, restaurantes, supermercados, mercado, delivery"},
	{CategoryTransport, "transporte", "🚗", "Transporte", "uber, taxi, bus, gasolina, pasajes, peajes, estacionamiento"},
	{CategoryHealth, "salud", "💊", "Salud", "farmacia, medicina, doctor, hospital, dentista"},
	{CategoryEntertainment, "entretenimiento", "🎬", "Entretenimiento", "cine, netflix, spotify, gym, bar, conciertos"},
	{CategoryUtilities, "servicios", "📱", "Servicios", "luz, agua, internet, teléfono, software, APIs, peluquería"},
	{CategoryShopping, "compras", "🛍️", "Compras", "ropa, electrónica, amazon, tiendas online, regalos"},
	{CategoryEducation, "educacion", "📚", "Educación", "cursos, libros, universidad, idiomas"},
	{CategoryHome, "hogar", "🏠", "Hogar", "alquiler, muebles, limpieza, reparaciones, mascotas"},
	{CategoryOther, "otros", "📦", "Otros", "si no encaja en ninguna otra"},
}

var categoryIndex = func() map[string]int {
	idx := make(map[string]int, len(Categories)*2)
	for i, c := range Categories {
		idx[string(c.Category)] = i
		idx[c.WireTag] = i
	}
	return idx
}()

// ParseCategory maps an English tag or a Spanish wire tag to a Category.
// Matching ignores case, surrounding whitespace and accents.
func ParseCategory(s string) (Category, bool) {
	i, ok := categoryIndex[foldTag(s)]
	if !ok {
		return "", false
	}
	return Categories[i].Category, true
}

// Info returns the display metadata for c. Unknown values get the metadata of
// CategoryOther.
func (c Category) Info() CategoryInfo {
	if i, ok := categoryIndex[string(c)]; ok {
		return Categories[i]
	}
	return Categories[len(Categories)-1]
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	i, ok := categoryIndex[string(c)]
	return ok && Categories[i].Category == c
}

// Emoji returns the category's display emoji.
func (c Category) Emoji() string { return c.Info().Emoji }

// Label returns the category's display label.
func (c Category) Label() string { return c.Info().Label }

// Order returns the category's position in display order.
func (c Category) Order() int {
	if i, ok := categoryIndex[string(c)]; ok {
		return i
	}
	return len(Categories) - 1
}

func foldTag(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return folded
}
