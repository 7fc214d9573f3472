package generation

import (
	"fmt"
	"strings"

	"github.com/loom-ai/loom/internal/assembly"
	"github.com/loom-ai/loom/internal/models"
)

// BuildPrompt renders the assembled context and query into the model prompt.
// Sections appear in a fixed order so identical inputs produce identical
// prompts: rules and guidelines first, then retrieved knowledge by kind,
// then the task.
func BuildPrompt(query, language string, c *assembly.Context) string {
	var b strings.Builder

	b.WriteString("You are a code generator. Produce code that follows every rule and guideline below.\n")
	if language != "" {
		fmt.Fprintf(&b, "Target language: %s\n", language)
	}

	if len(c.AlwaysOn) > 0 {
		b.WriteString("\n## Rules and guidelines (mandatory)\n")
		for _, e := range c.AlwaysOn {
			writeEntity(&b, &e)
		}
	}

	if len(c.Retrieved) > 0 {
		b.WriteString("\n## Relevant knowledge\n")
		for _, e := range c.Retrieved {
			writeEntity(&b, &e)
		}
	}

	b.WriteString("\n## Task\n")
	b.WriteString(query)
	b.WriteString("\n\nRespond with code only. Do not wrap the output in markdown fences.\n")
	return b.String()
}

func writeEntity(b *strings.Builder, e *models.Entity) {
	fmt.Fprintf(b, "\n### %s: %s\n", e.Kind, e.Name())
	if e.Content != "" {
		b.WriteString(e.Content)
		if !strings.HasSuffix(e.Content, "\n") {
			b.WriteString("\n")
		}
	}
}
