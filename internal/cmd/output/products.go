package output

import (
	"io"
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/agentstation/retailchain/pkg/catalog"
)

var productColumns = []string{"id", "name", "sku", "category"}

// acronyms are column names rendered upper-case rather than title-case.
var acronyms = map[string]bool{"id": true, "sku": true}

func columnTitle(name string) string {
	if acronyms[name] {
		return cases.Upper(language.English).String(name)
	}
	return cases.Title(language.English).String(name)
}

func productRow(p catalog.Product) []string {
	return []string{strconv.FormatInt(p.ID, 10), p.Name, p.SKU, p.Category}
}

// Products renders a product list, one row per product.
type Products []catalog.Product

// TableData implements Tabular.
func (ps Products) TableData() Data {
	headers := make([]string, len(productColumns))
	for i, c := range productColumns {
		headers[i] = columnTitle(c)
	}
	rows := make([][]string, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, productRow(p))
	}
	return Data{
		Headers:         headers,
		Rows:            rows,
		ColumnAlignment: []Align{AlignRight, AlignLeft, AlignLeft, AlignLeft},
	}
}

// Product renders a single product as a property/value table.
type Product catalog.Product

// TableData implements Tabular.
func (p Product) TableData() Data {
	values := productRow(catalog.Product(p))
	rows := make([][]string, len(productColumns))
	for i, c := range productColumns {
		rows[i] = []string{columnTitle(c), values[i]}
	}
	return Data{Headers: []string{"Property", "Value"}, Rows: rows}
}

// FormatProducts writes products to w in the given format.
func FormatProducts(w io.Writer, format Format, products []catalog.Product) error {
	if products == nil {
		products = []catalog.Product{}
	}
	return NewFormatter(format).Format(w, Products(products))
}

// FormatProduct writes one product to w in the given format.
func FormatProduct(w io.Writer, format Format, product catalog.Product) error {
	return NewFormatter(format).Format(w, Product(product))
}
