package content

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed fallback/*.json
var fallbackFS embed.FS

// Sample data shown when the data service is unreachable or unconfigured.
// Each call decodes a fresh copy so callers may mutate the result.

func FallbackArticles() []Article { return mustDecode[Article]("articles") }
func FallbackNews() []News        { return mustDecode[News]("news") }
func FallbackUsers() []User       { return mustDecode[User]("users") }
func FallbackUpdates() []Update   { return mustDecode[Update]("updates") }

func mustDecode[T any](name string) []T {
	b, err := fallbackFS.ReadFile("fallback/" + name + ".json")
	if err != nil {
		panic(fmt.Sprintf("content: missing fallback %s: %v", name, err))
	}
	var out []T
	if err := json.Unmarshal(b, &out); err != nil {
		panic(fmt.Sprintf("content: bad fallback %s: %v", name, err))
	}
	return out
}
