// Package dbstrings provides the case conversions used to derive column
// names from field names and back. Field names are lowerCamelCase as they
// appear in entity structs and API payloads; column names are snake_case.
package dbstrings

import (
	"strings"
	"unicode"
)

// ToSnakeCase converts a lowerCamelCase or PascalCase name to snake_case.
// Uppercase runs stay one word, so acronym-bearing names keep their shape.
// Examples:
//
//	"appId" -> "app_id"
//	"appID" -> "app_id"
//	"APIKey" -> "api_key"
//	"id" -> "id"
func ToSnakeCase(s string) string {
	runes := []rune(s)
	var result strings.Builder
	for i, r := range runes {
		if !unicode.IsUpper(r) {
			result.WriteRune(r)
			continue
		}
		if i > 0 {
			prev := runes[i-1]
			// Word boundary: after a lowercase letter or digit, or at the
			// last letter of an uppercase run followed by lowercase.
			if unicode.IsLower(prev) || unicode.IsDigit(prev) ||
				(unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])) {
				result.WriteRune('_')
			}
		}
		result.WriteRune(unicode.ToLower(r))
	}
	return result.String()
}

// ToCamelCase converts a snake_case column name to a lowerCamelCase field
// name. Examples:
//
//	"app_id" -> "appId"
//	"deleted_at" -> "deletedAt"
//	"id" -> "id"
func ToCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if i == 0 || len(part) == 0 {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, "")
}

// ToPascalCase converts a snake_case column name to PascalCase, as used for
// Go struct field names. Examples:
//
//	"app_id" -> "AppId"
//	"created_at" -> "CreatedAt"
func ToPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}
