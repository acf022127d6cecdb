package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoInput is returned when the user enters nothing.
var ErrNoInput = errors.New("no input provided")

// Prompter reads answers from In and writes questions to Out.
type Prompter struct {
	reader *bufio.Reader
	out    io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{reader: bufio.NewReader(in), out: out}
}

// PromptString asks question and returns the trimmed answer. An empty answer
// is ErrNoInput.
func (p *Prompter) PromptString(question string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", question)

	response, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && response != "") {
		if errors.Is(err, io.EOF) {
			return "", ErrNoInput
		}
		return "", err
	}

	response = strings.TrimSpace(response)
	if response == "" {
		return "", ErrNoInput
	}
	return response, nil
}

// PrintDependencyStatus prints a summary of dependency status
func PrintDependencyStatus(w io.Writer, deps []DependencyStatus) {
	fmt.Fprintln(w, "CLI Tool Status:")
	fmt.Fprintln(w, "----------------")

	for _, dep := range deps {
		icon := "+"
		if !dep.Installed {
			icon = "-"
		} else if dep.Message != "" {
			icon = "!"
		}

		version := dep.Version
		if version == "" {
			version = "not installed"
			if dep.Installed {
				version = "unknown version"
			}
		}

		required := ""
		if dep.Required {
			required = " (required)"
		}

		fmt.Fprintf(w, "  [%s] %s: %s%s\n", icon, dep.Name, version, required)

		if dep.Message != "" {
			fmt.Fprintf(w, "      %s\n", dep.Message)
		}
	}
}
