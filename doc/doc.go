// Package doc renders a human-readable report of a System's registrations.
package doc

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"archie/pkg"
)

const report = `# System: {{ .Name }}

- Uses Patterns: {{ yesno .UsesPatterns }}

## Actions
{{ range .Actions }}
- Action {{ .Name }}
{{ range $i, $c := .Chains }}  - {{ chain $i $c }}
{{ end }}{{ end }}{{ if .BeforeAll }}
## Before All

{{ range $i, $c := .BeforeAll }}- {{ chain $i $c }}
{{ end }}{{ end }}{{ if .AfterAll }}
## After All

{{ range $i, $c := .AfterAll }}- {{ chain $i $c }}
{{ end }}{{ end }}`

var reportTmpl = template.Must(template.New("report").Funcs(template.FuncMap{
	"yesno": yesno,
	"chain": describeChain,
}).Parse(report))

// Doc generates documentation for a System
type Doc struct {
	system *pkg.System
}

// New creates a new Doc for sys
func New(sys *pkg.System) *Doc {
	return &Doc{system: sys}
}

// Generate returns the report as a string
func (d *Doc) Generate() (string, error) {
	var b strings.Builder
	if err := d.Write(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Write renders the report to w
func (d *Doc) Write(w io.Writer) error {
	if err := reportTmpl.Execute(w, d.system.Info()); err != nil {
		return fmt.Errorf("rendering doc for %s: %w", d.system.Name(), err)
	}
	return nil
}

func yesno(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func describeChain(i int, c pkg.ChainInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "chain %d: ", i+1)
	if len(c.Handlers) == 0 {
		b.WriteString("(no handlers)")
	} else {
		b.WriteString(strings.Join(c.Handlers, ", "))
	}
	if c.Validated {
		b.WriteString(" [validated]")
	}
	if c.Guards > 0 {
		fmt.Fprintf(&b, " [guards: %d]", c.Guards)
	}
	return b.String()
}
