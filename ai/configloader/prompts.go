package configloader

import (
	"errors"
	"strings"
)

// Prompts holds the operator-tunable prompt text.
type Prompts struct {
	SystemInstruction string `yaml:"system_instruction"`
}

// LoadPrompts reads a prompts file. An empty system instruction is rejected.
func (l *Loader) LoadPrompts(path string) (*Prompts, error) {
	p := &Prompts{}
	if err := l.Load(path, p); err != nil {
		return nil, err
	}
	p.SystemInstruction = strings.TrimSpace(p.SystemInstruction)
	if p.SystemInstruction == "" {
		return nil, errors.New("prompts: system_instruction must not be empty")
	}
	return p, nil
}
