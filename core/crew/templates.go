package crew

import (
	"regexp"
	"strings"

	"github.com/crewmux/crewmux/core/infra/logging"
)

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// placeholderDefaults backstops tokens the domain config leaves undefined,
// so resolution is total and raw braces never leak into agent prompts.
var placeholderDefaults = map[string]string{
	"domain_name":  "our business",
	"company_name": "our company",
	"team_name":    "our team",
}

// resolvePlaceholders substitutes every {token} in a backstory template.
// Lookup order: domain-config placeholders, the built-in domain_name, then
// the documented defaults. An entirely unknown token resolves to the empty
// string and is logged once per build.
func resolvePlaceholders(template, domainName string, placeholders map[string]string) string {
	if !strings.Contains(template, "{") {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		token := match[1 : len(match)-1]
		if v, ok := placeholders[token]; ok {
			return v
		}
		if token == "domain_name" && domainName != "" {
			return domainName
		}
		if v, ok := placeholderDefaults[token]; ok {
			return v
		}
		logging.Warn(component, "unknown backstory placeholder dropped",
			"token", token, "domain", domainName)
		return ""
	})
}

// stringMapFromConfig extracts a placeholders section from merged config.
func stringMapFromConfig(fragment any) map[string]string {
	raw, ok := asStringMap(fragment)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
