package config

import "testing"

const channelTableYAML = `
channels:
  - channel: whatsapp
    account_id: "42"
    domain: cosmetics
  - inbox_id: inbox-7
    domain: retail
  - channel: telegram
    account_id: "42"
    domain: retail
`

func TestChannelTableLookup(t *testing.T) {
	table, err := ParseChannelTable([]byte(channelTableYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if domain, ok := table.DomainFor("whatsapp", "42", ""); !ok || domain != "cosmetics" {
		t.Fatalf("whatsapp/42 -> %q, %v", domain, ok)
	}
	// Same account on a different channel maps independently.
	if domain, ok := table.DomainFor("telegram", "42", ""); !ok || domain != "retail" {
		t.Fatalf("telegram/42 -> %q, %v", domain, ok)
	}
	// Inbox mapping with no channel restriction matches any channel.
	if domain, ok := table.DomainFor("web", "", "inbox-7"); !ok || domain != "retail" {
		t.Fatalf("inbox-7 -> %q, %v", domain, ok)
	}
	if _, ok := table.DomainFor("whatsapp", "999", ""); ok {
		t.Fatalf("unmapped account resolved")
	}
}

func TestChannelTableAccountOutranksInbox(t *testing.T) {
	table, err := ParseChannelTable([]byte(`
channels:
  - account_id: "1"
    domain: cosmetics
  - inbox_id: shared
    domain: retail
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if domain, _ := table.DomainFor("whatsapp", "1", "shared"); domain != "cosmetics" {
		t.Fatalf("account match should outrank inbox match, got %q", domain)
	}
}

func TestChannelTableFallback(t *testing.T) {
	table, err := ParseChannelTable([]byte("channels: []\ndefault_domain: solo\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if domain, ok := table.Fallback(); !ok || domain != "solo" {
		t.Fatalf("fallback -> %q, %v", domain, ok)
	}

	table, err = ParseChannelTable([]byte("channels: []\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := table.Fallback(); ok {
		t.Fatalf("fallback should be disabled by default")
	}
}

func TestChannelTableRejectsInvalid(t *testing.T) {
	if _, err := ParseChannelTable([]byte("channels:\n  - domain: x\n")); err == nil {
		t.Fatalf("mapping without keys should fail")
	}
	if _, err := ParseChannelTable([]byte("channels:\n  - account_id: \"1\"\n")); err == nil {
		t.Fatalf("mapping without domain should fail schema validation")
	}
	if _, err := ParseChannelTable(nil); err == nil {
		t.Fatalf("empty table should fail")
	}
}
