package config

import "embed"

const (
	channelsSchemaFile   = "schemas/channels.schema.json"
	classifierSchemaFile = "schemas/classifier.schema.json"
)

//go:embed schemas/*.json
var configSchemaFS embed.FS
