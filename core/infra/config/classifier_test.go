package config

import "testing"

const classifierYAML = `
default_kind: concierge
priority: [support, sales, product]
kinds:
  support: [help, refund, complaint]
  sales: [price, buy, order]
  product: [ingredients, size, color]
`

func TestParseClassifier(t *testing.T) {
	cfg, err := ParseClassifier([]byte(classifierYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.DefaultKind != "concierge" {
		t.Fatalf("unexpected default kind %q", cfg.DefaultKind)
	}
	if len(cfg.Priority) != 3 || cfg.Priority[0] != "support" {
		t.Fatalf("unexpected priority %v", cfg.Priority)
	}
	if len(cfg.Kinds["sales"]) != 3 {
		t.Fatalf("unexpected sales keywords %v", cfg.Kinds["sales"])
	}
}

func TestParseClassifierRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown priority kind": `
default_kind: d
priority: [ghost]
kinds:
  support: [help]
`,
		"kind missing from priority": `
default_kind: d
priority: [support]
kinds:
  support: [help]
  sales: [buy]
`,
		"duplicate priority": `
default_kind: d
priority: [support, support]
kinds:
  support: [help]
`,
		"no default": `
priority: [support]
kinds:
  support: [help]
`,
	}
	for name, yamlText := range cases {
		if _, err := ParseClassifier([]byte(yamlText)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
