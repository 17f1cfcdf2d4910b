package email

import (
	"fmt"
	"html"
	"strings"
)

// ReminderMessage builds the mail delivered for a due reminder
func ReminderMessage(to, subject, body string) Message {
	return Message{
		To:       to,
		Subject:  subject,
		TextBody: body,
		HTMLBody: ReminderEmailHTML(body, subject),
	}
}

// ReminderEmailHTML returns the HTML body for a reminder email.
// The user's message is escaped and its line breaks preserved.
func ReminderEmailHTML(body string, title string) string {
	escaped := strings.ReplaceAll(html.EscapeString(body), "\n", "<br>\n")
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
</head>
<body style="margin:0;padding:0;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;background-color:#f4f5f7;">
<table width="100%%" cellpadding="0" cellspacing="0" style="background-color:#f4f5f7;padding:40px 0;">
<tr><td align="center">
<table width="480" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:8px;overflow:hidden;box-shadow:0 2px 8px rgba(0,0,0,0.08);">
  <tr><td style="padding:32px 40px 16px;text-align:center;">
    <h1 style="margin:0;font-size:22px;color:#1a1a2e;">Your reminder</h1>
  </td></tr>
  <tr><td style="padding:0 40px 32px;">
    <p style="margin:0;font-size:15px;color:#4a4a68;line-height:1.6;">%s</p>
  </td></tr>
  <tr><td style="padding:16px 40px;background-color:#f9f9fc;border-top:1px solid #eeeef2;">
    <p style="margin:0;font-size:12px;color:#aaaabc;text-align:center;">
      You scheduled this reminder yourself. This is an automated message, please do not reply.
    </p>
  </td></tr>
</table>
</td></tr>
</table>
</body>
</html>`, html.EscapeString(title), escaped)
}
