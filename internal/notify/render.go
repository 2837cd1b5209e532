// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	"text/template"

	"github.com/samber/oops"

	"github.com/holomush/accountd/internal/auth"
)

type content struct {
	subject string
	body    *template.Template
}

var contents = map[auth.MessageKind]content{
	auth.MessageChangeEmail: {
		subject: "Confirm your email change",
		body: template.Must(template.New("change_email").Parse(
			`Hi {{.Name}},

Someone asked to change the email address on your account. If it was you,
continue here:

{{.CallbackURL}}

If it wasn't, ignore this message and nothing will change.
`)),
	},
	auth.MessageVerifyNewEmail: {
		subject: "Verify your new email address",
		body: template.Must(template.New("verify_new_email").Parse(
			`Hi {{.Name}},

Confirm that this is your new email address:

{{.CallbackURL}}
`)),
	},
	auth.MessageSetPassword: {
		subject: "Set your password",
		body: template.Must(template.New("set_password").Parse(
			`Hi {{.Name}},

Use this link to set a password for your account:

{{.CallbackURL}}
`)),
	},
	auth.MessageResetPassword: {
		subject: "Reset your password",
		body: template.Must(template.New("reset_password").Parse(
			`Hi {{.Name}},

Use this link to choose a new password:

{{.CallbackURL}}

If you didn't ask for this, you can ignore this message.
`)),
	},
}

// Render returns the subject and plain-text body for msg.
func Render(msg auth.Message) (subject, body string, err error) {
	c, ok := contents[msg.Kind]
	if !ok {
		return "", "", oops.Code("NOTIFY_UNKNOWN_KIND").
			With("kind", msg.Kind.String()).
			Errorf("no template for message kind")
	}

	data := msg
	if data.Name == "" {
		data.Name = "there"
	}
	var buf bytes.Buffer
	if err := c.body.Execute(&buf, data); err != nil {
		return "", "", oops.Code("NOTIFY_RENDER_FAILED").
			With("kind", msg.Kind.String()).
			Wrap(err)
	}
	return c.subject, buf.String(), nil
}
