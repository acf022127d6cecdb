package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptString(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("  https://github.com/org/app.git \n"), &out)

	got, err := p.PromptString("Repository URL")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/org/app.git", got)
	assert.Equal(t, "Repository URL: ", out.String())
}

func TestPromptStringWithoutNewline(t *testing.T) {
	p := NewPrompter(strings.NewReader("20240101120000"), &bytes.Buffer{})
	got, err := p.PromptString("Tag")
	require.NoError(t, err)
	assert.Equal(t, "20240101120000", got)
}

func TestPromptStringEmpty(t *testing.T) {
	p := NewPrompter(strings.NewReader("\n"), &bytes.Buffer{})
	_, err := p.PromptString("Tag")
	assert.ErrorIs(t, err, ErrNoInput)

	p = NewPrompter(strings.NewReader(""), &bytes.Buffer{})
	_, err = p.PromptString("Tag")
	assert.ErrorIs(t, err, ErrNoInput)
}
