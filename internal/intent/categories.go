package intent

// DefaultCategories is the product-area table used when no other is
// configured.
func DefaultCategories() []Category {
	return []Category{
		{
			Name:     "embroidery",
			Keywords: []string{"embroidery", "embroider", "hoop", "hoops", "design", "designs", "monogram"},
			Hint:     "The user is asking about embroidery machines, hoops or designs.",
		},
		{
			Name:     "overlock",
			Keywords: []string{"overlock", "overlocker", "serger", "interlock", "hemming"},
			Hint:     "The user is asking about overlock and serger machines.",
		},
		{
			Name:     "sewing",
			Keywords: []string{"sewing", "stitch", "stitches", "buttonhole", "tailoring", "silai"},
			Hint:     "The user is asking about sewing machines and their stitch features.",
		},
		{
			Name:     "accessories",
			Keywords: []string{"accessory", "accessories", "needle", "needles", "bobbin", "presser foot", "thread", "cover"},
			Hint:     "The user is asking about accessories and spare parts.",
		},
		{
			Name:     "service",
			Keywords: []string{"warranty", "guarantee", "repair", "service", "servicing", "installation", "demo"},
			Hint:     "The user is asking about warranty, servicing or installation.",
		},
		{
			Name:     "pricing",
			Keywords: []string{"price", "prices", "cost", "rate", "emi", "offer", "discount", "kitna", "daam"},
			Hint:     "The user is asking about prices or offers.",
		},
	}
}
