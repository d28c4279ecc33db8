package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

const welcomeSubject = "Your enrollment is approved"

// welcomeTmpl is the single templated message this pipeline sends. Template
// design beyond this minimal body is out of scope; product owns the real
// branding through the email provider.
var welcomeTmpl = template.Must(template.New("welcome").Parse(`<p>Hi {{.FirstName}},</p>
<p>{{.ChildName}}'s enrollment has been approved and a parent account has been created for you.</p>
<p>Your temporary password is: <strong>{{.OneTimePW}}</strong></p>
<p>Please set your own password using this link: <a href="{{.ResetLink}}">Set password</a></p>
<p>The link expires soon; you can request a new one from the sign-in page at any time.</p>`))

type welcomeData struct {
	FirstName string
	ChildName string
	OneTimePW string
	ResetLink string
}

func renderWelcome(n *Notification, resetLink string) (string, error) {
	var buf bytes.Buffer
	data := welcomeData{
		FirstName: n.FirstName,
		ChildName: n.ChildName,
		OneTimePW: n.OneTimePW,
		ResetLink: resetLink,
	}
	if err := welcomeTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render welcome template: %w", err)
	}
	return buf.String(), nil
}
