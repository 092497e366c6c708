/*
Package dsl provides a Go DSL for programmatically constructing intent schemas.

It builds the same document a YAML or JSON schema file describes, using a fluent builder
instead of an external file. This is useful for generated schemas, unit tests and IDE
autocompletion. Build runs the full schema validation, so a built model is as trustworthy
as a loaded one.

Example usage:

	b := dsl.New("Patient").Lookup("patient_dob", "insurance")

	root := b.Root()
	root.Ask("patient_dob", domain.TypeDate).
		Describe("Date of birth").
		Pattern(`^\d{4}-\d{2}-\d{2}$`, "DOB must be in YYYY-MM-DD format.")
	root.BranchOnRecord("Returning Patient", true)
	root.Otherwise("New Patient")

	root.Child("Returning Patient").API("insurance", domain.TypeString)
	root.Child("New Patient").Ask("insurance", domain.TypeString)

	model, err := b.Build()
*/
package dsl
