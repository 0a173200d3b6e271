package email

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"
)

// previewRunes caps how much of a message body is quoted in a notification.
const previewRunes = 140

// NewMessageEmailData describes one unseen message for an offline participant.
type NewMessageEmailData struct {
	To             string
	RecipientName  string
	SenderName     string
	ConversationID string
	Preview        string
	AppName        string
	BaseURL        string
	PrimaryColor   string
}

// BuildNewMessageEmail renders the "you have a new message" notification.
// The message body is user content and is escaped in the HTML part.
func BuildNewMessageEmail(data NewMessageEmailData) Message {
	appName := data.AppName
	if appName == "" {
		appName = "CareLink"
	}
	name := data.RecipientName
	if name == "" {
		name = "there"
	}
	sender := data.SenderName
	if sender == "" {
		sender = "Someone"
	}
	color := data.PrimaryColor
	if color == "" {
		color = "#2563eb"
	}
	preview := truncate(strings.TrimSpace(data.Preview), previewRunes)
	link := strings.TrimRight(data.BaseURL, "/") + "/conversations/" + data.ConversationID

	subject := fmt.Sprintf("New message from %s on %s", sender, appName)

	textBody := fmt.Sprintf(`Hi %s,

%s sent you a message:

"%s"

Open the conversation: %s

The %s Team`,
		name, sender, preview, link, appName)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="color: %s;">Hi %s,</h2>
    <p><strong>%s</strong> sent you a message:</p>
    <blockquote style="background-color: #f3f4f6; padding: 10px 15px; border-radius: 4px; margin: 20px 0;">%s</blockquote>
    <p style="text-align: center; margin: 30px 0;">
        <a href="%s" style="background-color: %s; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">Open conversation</a>
    </p>
    <p style="color: #6b7280; font-size: 14px; margin-top: 30px;">The %s Team</p>
</body>
</html>`,
		color, html.EscapeString(name), html.EscapeString(sender), html.EscapeString(preview),
		html.EscapeString(link), color, html.EscapeString(appName))

	return Message{
		To:       []string{data.To},
		Subject:  subject,
		TextBody: textBody,
		HTMLBody: htmlBody,
		Headers:  map[string]string{"X-Carelink-Conversation": data.ConversationID},
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}
