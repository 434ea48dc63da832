// Package docbind binds structured data into DOCX templates.
//
// A template is an ordinary Word document whose text contains three kinds of tokens:
//
//	{{customer.name}}                      placeholder
//	[[has_discount]] ... [[end:has_discount]]  conditional block
//	<<add_more items>> ... <<end:add_more>>    repeating block
//
// Placeholders take optional prefixes and a formatting rule:
//
//	{{uc.ls.name}}              upper-cased, with a leading space
//	{{price|number_format}}     1,234.5
//	{{created|date:dd.MM.yyyy}} date-fns style pattern
//
// Conditions are paths tested for truthiness, "path.no" negations, numeric
// "a > b" comparisons, single-level "and"/"or" combinations and, inside repeaters, the
// sentinels count1, count2 and common. Repeater bodies see the fields of the current
// element together with _index and _length.
//
// Word often splits one token across several runs with different formatting. Before
// resolution every template member goes through a repair pass (see the render
// subpackage) that rejoins such tokens into a single run.
//
// Basic usage:
//
//	engine := docbind.NewWithOptions(docbind.WithCompanyName("Acme"))
//	defer engine.Close()
//
//	err := engine.RenderFile(ctx, "offer.docx", docbind.TemplateData{
//	    "customer": map[string]interface{}{"name": "Jane"},
//	    "items": []map[string]interface{}{
//	        {"product": "Widget", "price": 19.99},
//	    },
//	}, "offer-jane.docx")
//
// Plain text can be resolved directly with ProcessTemplateString or a Resolver.
// Unknown paths render empty and malformed tokens are left in place; StrictMode turns
// malformed templates into a *ValidationError instead.
package docbind
