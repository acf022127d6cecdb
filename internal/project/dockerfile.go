package project

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

const (
	// DockerfileName is where the build plan is written in the project tree.
	DockerfileName = "Dockerfile"
	// ServePort is the port the static server listens on inside the container.
	ServePort = 3000
)

var dockerfileTmpl = template.Must(template.New("dockerfile").Parse(`FROM node:18-alpine
WORKDIR /app
COPY . .
RUN npm install
{{- if not .SourceMaps}}
ENV GENERATE_SOURCEMAP=false
{{- end}}
RUN npm run build
RUN npm install -g serve
CMD ["serve", "-s", "build", "-l", "{{.Port}}"]
`))

// PlanOptions tunes the generated build plan.
type PlanOptions struct {
	SourceMaps bool
}

// RenderDockerfile returns the build plan for a React project.
func RenderDockerfile(opts PlanOptions) ([]byte, error) {
	var buf bytes.Buffer
	err := dockerfileTmpl.Execute(&buf, struct {
		SourceMaps bool
		Port       int
	}{opts.SourceMaps, ServePort})
	if err != nil {
		return nil, fmt.Errorf("failed to render Dockerfile: %w", err)
	}
	return buf.Bytes(), nil
}

// MaterializeBuildPlan writes a Dockerfile into dir, replacing any existing one.
//
// Only a production "react" dependency qualifies; cra and vite projects that
// Classify recognizes but that do not list react under dependencies are
// rejected here. Rejections wrap ErrUnsupported.
func MaterializeBuildPlan(dir string, opts PlanOptions) (string, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return "", err
	}
	if !m.hasDep("react") {
		return "", ErrNotReact
	}

	content, err := RenderDockerfile(opts)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, DockerfileName)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
