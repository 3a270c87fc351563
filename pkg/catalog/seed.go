package catalog

// DefaultSeed returns the example records inserted on first read of an
// empty catalog.
func DefaultSeed() []Product {
	return []Product{
		NewProduct("Milk 1L", "MILK-001", "Dairy"),
		NewProduct("Bread", "BREAD-001", "Bakery"),
		NewProduct("Eggs 12pcs", "EGG-012", "Poultry"),
	}
}
