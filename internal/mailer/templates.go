package mailer

import (
	"bytes"
	"net/url"
	"strings"
	"text/template"
)

var (
	verificationTemplate = template.Must(template.New("verification").Parse(`Hi {{.Name}},

Please confirm your email address by opening the link below:

{{.Link}}

The link expires soon. If you did not create an account, you can ignore this email.
`))

	resetTemplate = template.Must(template.New("reset").Parse(`Hi {{.Name}},

We received a request to reset your password. Open the link below to choose a new one:

{{.Link}}

If you did not request a password reset, you can ignore this email.
`))
)

type templateData struct {
	Name string
	Link string
}

// Link joins the client base URL, a path and the token query parameter.
func Link(clientURL, path, token string) string {
	base := strings.TrimRight(clientURL, "/")
	return base + path + "?token=" + url.QueryEscape(token)
}

func VerificationMessage(clientURL, name, email, token string) (Message, error) {
	body, err := render(verificationTemplate, templateData{
		Name: name,
		Link: Link(clientURL, "/auth/verify-email", token),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    KindEmailVerification,
		To:      email,
		Subject: "Verify your email address",
		Body:    body,
	}, nil
}

func PasswordResetMessage(clientURL, name, email, token string) (Message, error) {
	body, err := render(resetTemplate, templateData{
		Name: name,
		Link: Link(clientURL, "/auth/reset-password", token),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    KindPasswordReset,
		To:      email,
		Subject: "Reset your password",
		Body:    body,
	}, nil
}

func render(t *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
