package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/ozerovd/linemart/internal/money"
	"github.com/ozerovd/linemart/internal/provider"
	"github.com/ozerovd/linemart/internal/registry"
)

// PresentInvoice delivers the payment request. Fiat invoices carry a
// checkout URL button; crypto invoices carry the pay address as text and a
// QR code photo. The returned message ID anchors later status edits.
func (b *Bot) PresentInvoice(ctx context.Context, userID int64, inv *provider.Invoice, amount int64, expiresAt time.Time) (int, error) {
	lang := b.lang(ctx, userID)
	deadline := expiresAt.Format("15:04 MST")

	buttons := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "check_button"), "pay:check:"+inv.ID),
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "cancel_button"), "pay:cancel:"+inv.ID),
		),
	)

	if inv.Currency == "eur" {
		// Fiat: PayAddress is the hosted checkout URL.
		text := fmt.Sprintf(msg(lang, "invoice_fiat"), money.Format(amount), deadline)
		m := tgbotapi.NewMessage(userID, text)
		rows := [][]tgbotapi.InlineKeyboardButton{}
		if inv.PayAddress != "" {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL(msg(lang, "pay_button"), inv.PayAddress),
			))
		}
		rows = append(rows, buttons.InlineKeyboard...)
		m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
		sent, err := b.api.Send(m)
		if err != nil {
			return 0, err
		}
		return sent.MessageID, nil
	}

	caption := fmt.Sprintf(msg(lang, "invoice_crypto"),
		money.Format(amount), inv.PayAmount, inv.Currency, inv.PayAddress, deadline)

	png, err := qrcode.Encode(inv.PayAddress, qrcode.Medium, 256)
	if err != nil {
		// Fall back to a plain text invoice if the QR render fails.
		b.logger.Warn("qr encoding failed", "invoice_id", inv.ID, "error", err)
		m := tgbotapi.NewMessage(userID, caption)
		m.ParseMode = "Markdown"
		m.ReplyMarkup = buttons
		sent, sendErr := b.api.Send(m)
		if sendErr != nil {
			return 0, sendErr
		}
		b.trackIfOnChain(inv)
		return sent.MessageID, nil
	}

	photo := tgbotapi.NewPhoto(userID, tgbotapi.FileBytes{Name: "invoice.png", Bytes: png})
	photo.Caption = caption
	photo.ParseMode = "Markdown"
	photo.ReplyMarkup = buttons
	sent, err := b.api.Send(photo)
	if err != nil {
		return 0, err
	}
	b.trackIfOnChain(inv)
	return sent.MessageID, nil
}

// trackIfOnChain hands ETH invoice addresses to the watcher so deposits
// confirm without a manual check.
func (b *Bot) trackIfOnChain(inv *provider.Invoice) {
	if b.tracker != nil && inv.Currency == "eth" && inv.PayAddress != "" {
		b.tracker.Track(inv.ID, inv.PayAddress)
	}
}

// AnnounceResolved rewrites the invoice anchor message after a credit.
func (b *Bot) AnnounceResolved(ctx context.Context, op *registry.Operation, balance int64) error {
	lang := b.lang(ctx, op.UserID)
	text := fmt.Sprintf(msg(lang, "resolved_anchor"), money.Format(op.Amount), money.Format(balance))
	return b.editAnchor(op, text)
}

// AnnounceExpired rewrites the invoice anchor message after expiry.
func (b *Bot) AnnounceExpired(ctx context.Context, op *registry.Operation) error {
	lang := b.lang(ctx, op.UserID)
	return b.editAnchor(op, msg(lang, "expired_anchor"))
}

// NotifyReferralBonus tells a referrer their cut of a topup landed.
func (b *Bot) NotifyReferralBonus(ctx context.Context, referrerID, bonus int64) error {
	lang := b.lang(ctx, referrerID)
	return b.sendText(referrerID, fmt.Sprintf(msg(lang, "referral_bonus"), money.Format(bonus)))
}

func (b *Bot) editAnchor(op *registry.Operation, text string) error {
	// Crypto anchors are photo messages, whose text cannot be edited.
	// Editing the caption covers both; a plain-text anchor gets an edit of
	// its text instead when the caption edit is rejected.
	edit := tgbotapi.NewEditMessageCaption(op.UserID, op.AnchorMessageID, text)
	if _, err := b.api.Request(edit); err == nil {
		return nil
	}
	_, err := b.api.Request(tgbotapi.NewEditMessageText(op.UserID, op.AnchorMessageID, text))
	return err
}
