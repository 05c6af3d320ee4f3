package mail

import (
	"strings"
	"text/template"
	"time"
)

var verificationTemplate = template.Must(template.New("verification").Parse(`Hi {{.Name}},

Your email verification code is:

    {{.Code}}

Enter it on the verification page{{if .URL}} ({{.URL}}){{end}}. The code expires in {{.ExpiresIn}}.

If you did not create an account, you can ignore this message.
`))

// VerificationData fills the verification email template.
type VerificationData struct {
	Name      string
	Code      string
	URL       string
	ExpiresIn time.Duration
}

// VerificationMessage renders the email that carries a verification code.
func VerificationMessage(to string, data VerificationData) (Message, error) {
	if data.Name == "" {
		data.Name = "there"
	}
	var body strings.Builder
	if err := verificationTemplate.Execute(&body, data); err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Verify your email address",
		Body:    body.String(),
	}, nil
}
