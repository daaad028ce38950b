package configstore

import (
	"embed"
	"fmt"

	infraschema "github.com/crewmux/crewmux/core/infra/schema"
)

const documentSchemaFile = "schemas/document.schema.json"

//go:embed schemas/*.json
var storeSchemaFS embed.FS

func validateDocument(doc *Document) error {
	schemaBytes, err := storeSchemaFS.ReadFile(documentSchemaFile)
	if err != nil {
		return fmt.Errorf("load document schema: %w", err)
	}
	if err := infraschema.ValidateSchema("config-document", schemaBytes, doc.Data); err != nil {
		return fmt.Errorf("config document %s/%s: %w", doc.Scope, doc.ScopeID, err)
	}
	return nil
}
