package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed prompts/*.txt
var defaultPrompts embed.FS

// Instruction file names looked up in the prompt directory.
const (
	ScenariosPromptFile = "bdd_system.txt"
	TestsPromptFile     = "test_writer_system.txt"
	DiagnosisPromptFile = "failure_analyst_system.txt"
	LogsPromptFile      = "log_analyst_system.txt"
)

// Instructions holds the system instruction for each generation stage.
// Loaded once per process and never modified afterwards.
type Instructions struct {
	Scenarios string
	Tests     string
	Diagnosis string
	Logs      string

	// Sources records where each instruction came from, keyed by file name.
	Sources map[string]string
}

// LoadInstructions reads each instruction from dir, falling back to the
// built-in text when the file does not exist. An empty dir uses only the
// built-in texts.
func LoadInstructions(dir string) (Instructions, error) {
	ins := Instructions{Sources: make(map[string]string, 4)}

	targets := []struct {
		file string
		dst  *string
	}{
		{ScenariosPromptFile, &ins.Scenarios},
		{TestsPromptFile, &ins.Tests},
		{DiagnosisPromptFile, &ins.Diagnosis},
		{LogsPromptFile, &ins.Logs},
	}

	for _, t := range targets {
		text, source, err := loadInstruction(dir, t.file)
		if err != nil {
			return Instructions{}, err
		}
		*t.dst = text
		ins.Sources[t.file] = source
	}
	return ins, nil
}

func loadInstruction(dir, name string) (text, source string, err error) {
	if dir != "" {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			return strings.TrimSpace(string(data)), path, nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", "", fmt.Errorf("read instruction %s: %w", path, err)
		}
	}

	data, err := defaultPrompts.ReadFile("prompts/" + name)
	if err != nil {
		return "", "", fmt.Errorf("read built-in instruction %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), "built-in", nil
}
