package generation

import (
	"fmt"
	"strings"
	"time"

	"github.com/loom-ai/loom/internal/models"
)

// commentPrefix returns the line-comment marker for a language. Unknown
// languages get "#", which the widest range of tools tolerate.
func commentPrefix(language string) string {
	switch strings.ToLower(language) {
	case "go", "java", "javascript", "typescript", "c", "cpp", "c++", "rust", "swift", "kotlin", "scala":
		return "//"
	case "sql", "lua", "haskell":
		return "--"
	default:
		return "#"
	}
}

// Watermark prepends a comment header tying the output back to its
// generation record and the entities it was generated from.
func Watermark(output, language, modelID, recordID string, contextEntities []models.Entity, at time.Time) string {
	prefix := commentPrefix(language)

	names := make([]string, 0, len(contextEntities))
	for i := range contextEntities {
		names = append(names, contextEntities[i].Name())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s loom:generated\n", prefix)
	fmt.Fprintf(&b, "%s generated-at: %s\n", prefix, at.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "%s model: %s\n", prefix, modelID)
	fmt.Fprintf(&b, "%s record: %s\n", prefix, recordID)
	if len(names) > 0 {
		fmt.Fprintf(&b, "%s generated-from: %s\n", prefix, strings.Join(names, ", "))
	}
	b.WriteString("\n")
	b.WriteString(output)
	return b.String()
}
