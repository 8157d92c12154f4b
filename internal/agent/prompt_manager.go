package agent

import (
	"bytes"
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"
)

//go:embed prompts/*.md
var defaultPrompts embed.FS

// Prompt roles. Each has a prompts/<role>.md file.
const (
	RoleCoordinator = "coordinator"
	RolePlanner     = "planner"
	RoleResearcher  = "researcher"
	RoleCoder       = "coder"
	RoleReporter    = "reporter"
)

// PromptData fills the placeholders of a prompt.
type PromptData struct {
	CurrentTime string
	Locale      string
	MaxStepNum  int
}

// PromptManager builds system prompts from markdown fragments. Files in
// Directory override the embedded defaults of the same name.
type PromptManager struct {
	Directory string
	Locale    string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir, Locale: "en-US"}
}

// fragment order: shared identity, role instructions, user additions.
var order = map[string]int{
	"identity.md": 1,
	"user.md":     3,
}

// GetPrompt returns the rendered system prompt for role.
func (pm *PromptManager) GetPrompt(role string, data PromptData) (string, error) {
	names := []string{"identity.md", role + ".md", "user.md"}
	sort.SliceStable(names, func(i, j int) bool { return rank(names[i]) < rank(names[j]) })

	var contents []string
	for _, name := range names {
		text, err := pm.read(name)
		if err != nil {
			if name == role+".md" {
				return "", fmt.Errorf("failed to load %s prompt: %w", role, err)
			}
			continue
		}
		contents = append(contents, text)
	}

	if data.CurrentTime == "" {
		data.CurrentTime = time.Now().Format(time.RFC1123)
	}
	if data.Locale == "" {
		data.Locale = pm.Locale
	}

	tmpl, err := template.New(role).Parse(strings.Join(contents, "\n\n---\n\n"))
	if err != nil {
		return "", fmt.Errorf("failed to parse %s prompt: %w", role, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", role, err)
	}
	return buf.String(), nil
}

func rank(name string) int {
	if r, ok := order[name]; ok {
		return r
	}
	return 2
}

func (pm *PromptManager) read(name string) (string, error) {
	if pm.Directory != "" {
		path := filepath.Join(pm.Directory, name)
		data, err := os.ReadFile(path)
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			log.Printf("Warning: Failed to read prompt file %s: %v", path, err)
		}
	}
	data, err := defaultPrompts.ReadFile("prompts/" + name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
