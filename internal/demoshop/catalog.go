// internal/demoshop/catalog.go
package demoshop

// Product is one storefront item.
type Product struct {
	ID    string
	Name  string
	// PriceCents avoids float arithmetic on money.
	PriceCents int
	Blurb      string
}

// Catalog is the shop's fixed product inventory.
type Catalog struct {
	products []Product
	byID     map[string]Product
}

// NewCatalog builds a catalog over the given products, preserving order.
func NewCatalog(products []Product) *Catalog {
	c := &Catalog{
		products: products,
		byID:     make(map[string]Product, len(products)),
	}
	for _, p := range products {
		c.byID[p.ID] = p
	}
	return c
}

// All returns the products in display order.
func (c *Catalog) All() []Product {
	return c.products
}

// Get looks a product up by ID.
func (c *Catalog) Get(id string) (Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// defaultCatalog is the inventory the bundled shop ships with.
func defaultCatalog() []Product {
	return []Product{
		{ID: "lamp-aurora", Name: "Aurora Desk Lamp", PriceCents: 4900, Blurb: "Warm dimmable light with a walnut base."},
		{ID: "mug-basalt", Name: "Basalt Stoneware Mug", PriceCents: 1800, Blurb: "Holds 350ml and a surprising amount of opinions."},
		{ID: "chair-drift", Name: "Driftwood Side Chair", PriceCents: 12900, Blurb: "Steam-bent oak, oiled finish."},
		{ID: "rug-tidal", Name: "Tidal Wool Rug", PriceCents: 25900, Blurb: "Hand-tufted, 160x230cm."},
		{ID: "clock-lunar", Name: "Lunar Wall Clock", PriceCents: 7400, Blurb: "Silent sweep movement, brushed brass."},
		{ID: "vase-ember", Name: "Ember Glass Vase", PriceCents: 5600, Blurb: "Mouth-blown amber glass, one of a kind."},
	}
}
