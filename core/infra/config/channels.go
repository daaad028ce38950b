package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChannelMapping binds one channel identity to a domain. AccountID and
// InboxID are alternative match keys; Channel narrows the match when set.
type ChannelMapping struct {
	Channel   string `yaml:"channel,omitempty"`
	AccountID string `yaml:"account_id,omitempty"`
	InboxID   string `yaml:"inbox_id,omitempty"`
	Domain    string `yaml:"domain"`
}

// ChannelTable is the operator-provided static channel-to-domain mapping.
// DefaultDomain, when set, enables the single-tenant fallback for identities
// no mapping covers; empty means unresolvable identities fail resolution.
type ChannelTable struct {
	Mappings      []ChannelMapping `yaml:"channels"`
	DefaultDomain string           `yaml:"default_domain,omitempty"`
}

// ParseChannelTable parses and validates channel table YAML bytes.
func ParseChannelTable(data []byte) (*ChannelTable, error) {
	if len(data) == 0 {
		return nil, errors.New("channel table is empty")
	}
	if err := validateConfigSchema("channels", channelsSchemaFile, data); err != nil {
		return nil, err
	}
	var table ChannelTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse channel table: %w", err)
	}
	for i, m := range table.Mappings {
		if m.Domain == "" {
			return nil, fmt.Errorf("channel mapping %d has no domain", i)
		}
		if m.AccountID == "" && m.InboxID == "" {
			return nil, fmt.Errorf("channel mapping %d has neither account_id nor inbox_id", i)
		}
	}
	return &table, nil
}

// LoadChannelTable reads and parses the channel table file.
func LoadChannelTable(path string) (*ChannelTable, error) {
	if path == "" {
		return nil, errors.New("channel table path is empty")
	}
	// #nosec G304 -- channel table path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channel table %s: %w", path, err)
	}
	table, err := ParseChannelTable(data)
	if err != nil {
		return nil, fmt.Errorf("load channel table %s: %w", path, err)
	}
	return table, nil
}

// DomainFor returns the mapped domain for a channel identity. Account-id
// matches outrank inbox-id matches; a mapping with an empty channel matches
// any channel.
func (t *ChannelTable) DomainFor(channel, accountID, inboxID string) (string, bool) {
	if t == nil {
		return "", false
	}
	channel = strings.TrimSpace(channel)
	accountID = strings.TrimSpace(accountID)
	inboxID = strings.TrimSpace(inboxID)

	if accountID != "" {
		for _, m := range t.Mappings {
			if m.AccountID == accountID && channelMatches(m.Channel, channel) {
				return m.Domain, true
			}
		}
	}
	if inboxID != "" {
		for _, m := range t.Mappings {
			if m.InboxID == inboxID && channelMatches(m.Channel, channel) {
				return m.Domain, true
			}
		}
	}
	return "", false
}

// Fallback returns the operator-configured default domain, if enabled.
func (t *ChannelTable) Fallback() (string, bool) {
	if t == nil || t.DefaultDomain == "" {
		return "", false
	}
	return t.DefaultDomain, true
}

func channelMatches(mapped, actual string) bool {
	return mapped == "" || strings.EqualFold(mapped, actual)
}
