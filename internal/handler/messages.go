package handler

import (
	"fmt"
	"strconv"
	"strings"

	"vpn-assistant/internal/domain"

	"github.com/dustin/go-humanize"
	"github.com/go-telegram/bot"
)

// Message constants for the bot
const (
	// Enrollment messages
	MSG_WELCOME = "👋 Welcome! I will set up VPN access for your devices.\n\n" +
		"How many devices do you want to connect? (1-5)"

	MSG_ASK_PLATFORM = "📱 Device %d of %d: choose its platform."

	MSG_TOO_MANY_DEVICES = "❌ You can connect at most %d devices. Please send a smaller number."

	MSG_INVALID_DEVICE_COUNT = "❌ Please send the number of devices as a whole number from 1 to 5."

	MSG_INVALID_PLATFORM = "❌ Unknown platform. Please pick one of the buttons below."

	MSG_PROVISIONING = "⏳ Creating the connection for device %d of %d (%s)..."

	MSG_DEVICE_READY = "✅ %s connection is ready. Scan the code or open the link below."

	MSG_COMPLETED = "🎉 All done! %d device(s) are connected.\n\nUse /start whenever you need more."

	MSG_ERROR = "❌ Something went wrong while %s. Please try again later with /start."

	MSG_CANCELLED = "🚫 Cancelled. Send /start to begin again."

	MSG_USE_HELP = "🤔 I did not understand that. Use /help to see what I can do."

	MSG_STALE_ACTION = "⌛ That button belongs to a finished step. Send /start to begin again."

	MSG_INVALID_ACTION = "❌ This action is invalid or no longer available."

	MSG_HELP = "ℹ️ Available commands:\n\n" +
		"/start - connect devices or manage your connections\n" +
		"/cancel - stop the current setup\n" +
		"/help - show this message"

	// Connection management messages
	MSG_WELCOME_BACK = "👋 Welcome back! You have %d active connection(s).\n\nWhat would you like to do?"

	MSG_NO_CONNECTIONS = "You have no connections yet."

	MSG_CONNECTIONS_HEADER = "🔌 Your connections:\n\n"

	MSG_CONNECTION_LINE = "%d. %s (%s)\n"

	MSG_CONNECTION_NOT_FOUND = "❌ Connection not found. It may have been removed already."

	MSG_CHOOSE_NEW_PLATFORM = "🔄 Choose the new platform for %s.\n\nThe old link will stop working."

	MSG_PLATFORM_CHANGED = "✅ Platform changed to %s."

	MSG_CONNECTION_DELETED = "🗑 Connection %s deleted."

	// Account messages
	MSG_NO_SUBSCRIPTION = "You do not have a subscription yet. Do you want to create one?"

	MSG_ACCOUNT_MENU = "👋 Hello, %s! Your subscription is %s.\n\nWhat would you like to do?"

	MSG_SUBSCRIPTION_CREATED = "✅ Your subscription has been created."

	MSG_ALREADY_SUBSCRIBED = "You already have a subscription."

	MSG_SUBSCRIPTION_RECREATED = "✅ Your subscription link has been renewed. The old link no longer works."

	MSG_SUBSCRIPTION_DELETED = "🗑 Your subscription has been deleted."

	MSG_QR_CAPTION = "Scan this code in your VPN app"

	// Button labels
	BTN_SHOW_CONNECTIONS = "🔌 My connections"
	BTN_ADD_DEVICES      = "➕ Add devices"
	BTN_EDIT             = "✏️ %s"
	BTN_DELETE           = "🗑"
	BTN_BACK             = "⬅️ Back"
	BTN_CREATE           = "✅ Create subscription"
	BTN_ABOUT_ME         = "👤 My profile"
	BTN_SUB_LINK         = "🔗 Subscription link"
	BTN_RECREATE         = "🔄 Renew link"
	BTN_DELETE_ME        = "🗑 Delete subscription"
)

const linkHint = "Import this link into a VPN client such as Hiddify."

// FormatLinkMessage renders a subscription link as a MarkdownV2 message with
// the link in a copyable code span.
func FormatLinkMessage(url string) string {
	var b strings.Builder
	b.WriteString(bot.EscapeMarkdown("🔗 Your subscription link:"))
	b.WriteString("\n`")
	b.WriteString(escapeCode(url))
	b.WriteString("`\n\n")
	b.WriteString(bot.EscapeMarkdown(linkHint))
	return b.String()
}

// FormatProfile renders a subscription as a MarkdownV2 profile card
func FormatProfile(sub *domain.Subscription) string {
	var b strings.Builder

	line := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString("*")
		b.WriteString(bot.EscapeMarkdown(label))
		b.WriteString(":* ")
		b.WriteString(bot.EscapeMarkdown(value))
		b.WriteString("\n")
	}

	b.WriteString("👤 ")
	b.WriteString(bot.EscapeMarkdown("Profile"))
	b.WriteString("\n\n")

	line("Username", sub.Username)
	line("Status", sub.Status)
	if sub.TelegramID != 0 {
		line("Telegram ID", strconv.FormatInt(sub.TelegramID, 10))
	}
	line("Email", sub.Email)
	line("Traffic", formatTraffic(sub.UsedTrafficBytes, sub.TrafficLimitBytes))
	line("Used all time", humanize.IBytes(uint64(max(sub.LifetimeTrafficBytes, 0))))
	line("Last client", sub.SubLastUserAgent)
	if sub.FirstConnectedAt != nil {
		line("First connected", sub.FirstConnectedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	if !sub.ExpireAt.IsZero() {
		line("Expires", sub.ExpireAt.UTC().Format("2006-01-02"))
	}

	if sub.SubscriptionURL != "" {
		b.WriteString("\n*")
		b.WriteString(bot.EscapeMarkdown("Subscription link"))
		b.WriteString(":*\n`")
		b.WriteString(escapeCode(sub.SubscriptionURL))
		b.WriteString("`\n")
	}
	if sub.HappCryptoLink != "" {
		b.WriteString("\n*")
		b.WriteString(bot.EscapeMarkdown("Happ link"))
		b.WriteString(":*\n`")
		b.WriteString(escapeCode(sub.HappCryptoLink))
		b.WriteString("`\n")
	}

	return b.String()
}

// FormatConnections lists connections with their 1-based position
func FormatConnections(records []domain.ClientRecord) string {
	var b strings.Builder
	b.WriteString(MSG_CONNECTIONS_HEADER)
	for i, record := range records {
		fmt.Fprintf(&b, MSG_CONNECTION_LINE, i+1, record.Email, platformOrUnknown(record.Platform))
	}
	return b.String()
}

// failureText is the sanitised message shown for a failed operation
func failureText(err error, fallbackStage string) string {
	if domain.IsNotFound(err) {
		return MSG_CONNECTION_NOT_FOUND
	}
	return fmt.Sprintf(MSG_ERROR, domain.StageOf(err, fallbackStage))
}

func formatTraffic(used, limit int64) string {
	usedText := humanize.IBytes(uint64(max(used, 0)))
	if limit <= 0 {
		return usedText + " / ∞"
	}
	return usedText + " / " + humanize.IBytes(uint64(limit))
}

func platformOrUnknown(platform string) string {
	if platform == "" {
		return "unknown platform"
	}
	return platform
}

// escapeCode escapes the characters MarkdownV2 reserves inside code spans
func escapeCode(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "`", "\\`")
}
