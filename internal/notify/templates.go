package notify

import (
	"bytes"
	"html/template"
)

var invitationTemplate = template.Must(template.New("invitation").Parse(`<html>
<body style="font-family: sans-serif;">
	<h2>You have been invited</h2>
	<p>You were invited to join <strong>{{.Company}}</strong> on the freight quotation platform.</p>
	<p><a href="{{.Link}}">Accept the invitation and create your account</a></p>
	<p>The invitation is valid for {{.ValidFor}}.</p>
</body>
</html>`))

var passwordResetTemplate = template.Must(template.New("reset").Parse(`<html>
<body style="font-family: sans-serif;">
	<h2>Password reset</h2>
	<p>A password reset was requested for your account.</p>
	<p><a href="{{.Link}}">Choose a new password</a></p>
	<p>The link expires in {{.ValidFor}}. If you did not request this, ignore this email.</p>
</body>
</html>`))

// InvitationEmail renders the invitation message.
func InvitationEmail(to, company, link, validFor string) (Message, error) {
	var buf bytes.Buffer
	err := invitationTemplate.Execute(&buf, map[string]string{
		"Company":  company,
		"Link":     link,
		"ValidFor": validFor,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Invitation to the freight quotation platform", HTML: buf.String()}, nil
}

// PasswordResetEmail renders the reset message.
func PasswordResetEmail(to, link, validFor string) (Message, error) {
	var buf bytes.Buffer
	err := passwordResetTemplate.Execute(&buf, map[string]string{
		"Link":     link,
		"ValidFor": validFor,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Password reset", HTML: buf.String()}, nil
}
