package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/aretw0/loam"
	"github.com/aretw0/quartet/internal/prompts"
)

// promptMeta is the frontmatter written for each template. The keys
// mirror what the prompt loader reads back.
type promptMeta struct {
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

func main() {
	targetDir := "prompts"
	if len(os.Args) > 1 {
		targetDir = os.Args[1]
	}

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		panic(err)
	}

	fmt.Printf("Exporting built-in prompt templates to: %s\n", targetDir)

	// Init Loam (No Versioning = pure file generation)
	repo, err := loam.Init(targetDir, loam.WithVersioning(false))
	if err != nil {
		panic(err)
	}

	typedRepo := loam.NewTypedRepository[promptMeta](repo)
	ctx := context.TODO()

	templates := prompts.Defaults()
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := templates[name]
		err = typedRepo.Save(ctx, &loam.DocumentModel[promptMeta]{
			ID:      name,
			Content: t.Text,
			Data:    promptMeta{MaxTokens: t.MaxTokens, Temperature: t.Temperature},
		})
		check(err)
		fmt.Printf("  wrote %s.md\n", name)
	}

	fmt.Println("Done. Edit the files and point prompts.dir at", targetDir)
}

func check(err error) {
	if err != nil {
		panic(err)
	}
}
