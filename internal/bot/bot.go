// Package bot is the Telegram storefront: menus, purchase flow and the
// top-up dialogue. It owns no business rules; every action is delegated to
// the checkout service or the payment engine.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ozerovd/linemart/internal/catalog"
	"github.com/ozerovd/linemart/internal/checkout"
	"github.com/ozerovd/linemart/internal/config"
	"github.com/ozerovd/linemart/internal/inventory"
	"github.com/ozerovd/linemart/internal/ledger"
	"github.com/ozerovd/linemart/internal/metrics"
	"github.com/ozerovd/linemart/internal/money"
	"github.com/ozerovd/linemart/internal/payments"
	"github.com/ozerovd/linemart/internal/provider"
	"github.com/ozerovd/linemart/internal/ratelimit"
	"github.com/ozerovd/linemart/internal/receipts"
	"github.com/ozerovd/linemart/internal/users"
)

// api is the subset of tgbotapi.BotAPI the bot uses, extracted so tests can
// substitute a recorder.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
}

// Tracker registers crypto invoice addresses with the on-chain watcher.
type Tracker interface {
	Track(invoiceID, payAddress string)
}

// userState is the per-user dialogue position for multi-step flows.
type userState struct {
	Flow   string // "" or "topup_amount"
	Basket []string
}

// Bot routes Telegram updates to the shop services.
type Bot struct {
	cfg      *config.Config
	api      api
	username string

	users    *users.Service
	catalog  *catalog.Catalog
	pool     *inventory.Pool
	checkout *checkout.Service
	engine   *payments.Engine
	ledger   *ledger.Ledger
	receipts *receipts.Service
	tracker  Tracker // nil when the watcher is disabled

	state   map[int64]userState
	mu      sync.Mutex
	limiter *ratelimit.Limiter

	logger *slog.Logger
}

// Deps are the services the bot fronts.
type Deps struct {
	Users    *users.Service
	Catalog  *catalog.Catalog
	Pool     *inventory.Pool
	Checkout *checkout.Service
	Ledger   *ledger.Ledger
	Receipts *receipts.Service
	Tracker  Tracker
}

// New connects to the Telegram API and builds the bot. The payment engine
// is attached separately with SetEngine because the engine's presenter is
// the bot itself.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Bot, error) {
	b, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("bot: connect: %w", err)
	}
	b.Debug = false

	bot := newWithAPI(cfg, b, deps, logger)
	bot.username = b.Self.UserName
	return bot, nil
}

// newWithAPI is the test seam.
func newWithAPI(cfg *config.Config, a api, deps Deps, logger *slog.Logger) *Bot {
	return &Bot{
		cfg:      cfg,
		api:      a,
		users:    deps.Users,
		catalog:  deps.Catalog,
		pool:     deps.Pool,
		checkout: deps.Checkout,
		ledger:   deps.Ledger,
		receipts: deps.Receipts,
		tracker:  deps.Tracker,
		state:    map[int64]userState{},
		limiter:  ratelimit.New(ratelimit.DefaultConfig()),
		logger:   logger.With("component", "bot"),
	}
}

// SetEngine attaches the payment engine after construction.
func (b *Bot) SetEngine(e *payments.Engine) {
	b.engine = e
}

// SetTracker attaches the on-chain deposit watcher after construction.
func (b *Bot) SetTracker(t Tracker) {
	b.tracker = t
}

// Run consumes the long-polling update stream until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("bot started", "username", b.username)
	defer b.limiter.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			switch {
			case upd.Message != nil:
				if !b.limiter.Allow(strconv.FormatInt(upd.Message.From.ID, 10)) {
					continue
				}
				metrics.BotUpdatesTotal.WithLabelValues("message").Inc()
				if err := b.handleMessage(ctx, upd.Message); err != nil {
					b.logger.Error("message handling failed",
						"user_id", upd.Message.From.ID, "error", err)
				}
			case upd.CallbackQuery != nil:
				if !b.limiter.Allow(strconv.FormatInt(upd.CallbackQuery.From.ID, 10)) {
					continue
				}
				metrics.BotUpdatesTotal.WithLabelValues("callback").Inc()
				if err := b.handleCallback(ctx, upd.CallbackQuery); err != nil {
					b.logger.Error("callback handling failed",
						"user_id", upd.CallbackQuery.From.ID, "error", err)
				}
			}
		}
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	m := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(m)
	return err
}

func (b *Bot) lang(ctx context.Context, userID int64) string {
	u, err := b.users.Get(ctx, userID)
	if err != nil {
		return "en"
	}
	return u.Language
}

func (b *Bot) getState(userID int64) userState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state[userID]
}

func (b *Bot) setState(userID int64, st userState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state[userID] = st
}

// ---------- Message handling ----------

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	userID := m.From.ID
	txt := strings.TrimSpace(m.Text)

	if strings.HasPrefix(txt, "/start") {
		var referrer int64
		if arg := strings.TrimSpace(strings.TrimPrefix(txt, "/start")); arg != "" {
			fmt.Sscanf(arg, "%d", &referrer)
		}
		lang := "en"
		if m.From.LanguageCode == "ru" {
			lang = "ru"
		}
		if _, err := b.users.Register(ctx, userID, referrer, lang); err != nil {
			return err
		}
		b.setState(userID, userState{})
		return b.showMainMenu(ctx, userID)
	}

	st := b.getState(userID)
	if st.Flow == "topup_amount" {
		return b.handleTopupAmount(ctx, userID, txt, st)
	}

	return b.showMainMenu(ctx, userID)
}

func (b *Bot) handleTopupAmount(ctx context.Context, userID int64, txt string, st userState) error {
	lang := b.lang(ctx, userID)

	amount, err := money.Parse(txt)
	if err != nil {
		return b.sendText(userID, msg(lang, "topup_bad_amount"))
	}
	if amount < b.cfg.MinTopup || amount > b.cfg.MaxTopup {
		return b.sendText(userID, fmt.Sprintf(msg(lang, "topup_out_of_range"),
			money.Format(b.cfg.MinTopup), money.Format(b.cfg.MaxTopup)))
	}

	st.Flow = ""
	b.setState(userID, st)
	return b.showMethodPicker(ctx, userID, amount)
}

// ---------- Callback handling ----------

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	userID := q.From.ID
	data := q.Data

	// ack
	_, _ = b.api.Request(tgbotapi.NewCallback(q.ID, ""))

	switch {
	case data == "menu":
		return b.showMainMenu(ctx, userID)
	case data == "shop":
		return b.showCategories(ctx, userID)
	case data == "basket":
		return b.showBasket(ctx, userID)
	case data == "bask:checkout":
		return b.checkoutBasket(ctx, userID)
	case data == "bask:clear":
		return b.clearBasket(ctx, userID)
	case data == "profile":
		return b.showProfile(ctx, userID)
	case data == "receipts":
		return b.showReceipts(ctx, userID)
	case data == "topup":
		return b.startTopup(ctx, userID)
	case data == "ref":
		return b.showReferral(ctx, userID)
	case strings.HasPrefix(data, "lang:"):
		return b.switchLanguage(ctx, userID, strings.TrimPrefix(data, "lang:"))
	case strings.HasPrefix(data, "cat:"):
		return b.showCategory(ctx, userID, strings.TrimPrefix(data, "cat:"))
	case strings.HasPrefix(data, "item:"):
		return b.showItem(ctx, userID, strings.TrimPrefix(data, "item:"))
	case strings.HasPrefix(data, "buy:"):
		return b.buyItem(ctx, userID, strings.TrimPrefix(data, "buy:"))
	case strings.HasPrefix(data, "bask:add:"):
		return b.addToBasket(ctx, userID, strings.TrimPrefix(data, "bask:add:"))
	case strings.HasPrefix(data, "topup:m:"):
		return b.createInvoice(ctx, userID, strings.TrimPrefix(data, "topup:m:"))
	case strings.HasPrefix(data, "pay:check:"):
		return b.checkPayment(ctx, userID, strings.TrimPrefix(data, "pay:check:"))
	case strings.HasPrefix(data, "pay:cancel:"):
		return b.cancelPayment(ctx, userID, strings.TrimPrefix(data, "pay:cancel:"))
	}
	return nil
}

// ---------- Screens ----------

func (b *Bot) showMainMenu(ctx context.Context, userID int64) error {
	lang := b.lang(ctx, userID)

	m := tgbotapi.NewMessage(userID, msg(lang, "welcome"))
	m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "menu_shop"), "shop"),
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "menu_basket"), "basket"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "menu_profile"), "profile"),
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "menu_topup"), "topup"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "menu_referral"), "ref"),
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "menu_language"), "lang:"+otherLang(lang)),
		),
	)
	_, err := b.api.Send(m)
	return err
}

func otherLang(lang string) string {
	if lang == "ru" {
		return "en"
	}
	return "ru"
}

func (b *Bot) switchLanguage(ctx context.Context, userID int64, lang string) error {
	if lang != "en" && lang != "ru" {
		lang = "en"
	}
	if err := b.users.SetLanguage(ctx, userID, lang); err != nil {
		return err
	}
	if err := b.sendText(userID, msg(lang, "language_set")); err != nil {
		return err
	}
	return b.showMainMenu(ctx, userID)
}

func (b *Bot) showCategories(ctx context.Context, userID int64) error {
	lang := b.lang(ctx, userID)

	categories, err := b.catalog.ListCategories(ctx)
	if err != nil {
		return err
	}
	if len(categories) == 0 {
		return b.sendText(userID, msg(lang, "no_items"))
	}

	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, c := range categories {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c, "cat:"+c),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(msg(lang, "back"), "menu"),
	))

	m := tgbotapi.NewMessage(userID, msg(lang, "categories"))
	m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err = b.api.Send(m)
	return err
}

func (b *Bot) showCategory(ctx context.Context, userID int64, category string) error {
	lang := b.lang(ctx, userID)

	items, err := b.catalog.ListByCategory(ctx, category)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return b.sendText(userID, msg(lang, "no_items"))
	}

	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, it := range items {
		label := fmt.Sprintf("%s — %s EUR", it.Name, money.Format(it.Price))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "item:"+it.Name),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(msg(lang, "back"), "shop"),
	))

	m := tgbotapi.NewMessage(userID, category)
	m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err = b.api.Send(m)
	return err
}

func (b *Bot) showItem(ctx context.Context, userID int64, name string) error {
	lang := b.lang(ctx, userID)

	item, err := b.catalog.Get(ctx, name)
	if errors.Is(err, catalog.ErrItemNotFound) {
		return b.sendText(userID, msg(lang, "no_items"))
	}
	if err != nil {
		return err
	}

	stock := msg(lang, "stock_unlimited")
	if !item.Unlimited {
		n, err := b.pool.Count(item.Name)
		if err != nil {
			return err
		}
		stock = fmt.Sprintf("%d", n)
	}

	m := tgbotapi.NewMessage(userID, fmt.Sprintf(msg(lang, "item_view"),
		item.Name, item.Description, money.Format(item.Price), stock))
	m.ParseMode = "Markdown"
	m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "buy"), "buy:"+item.Name),
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "add_to_basket"), "bask:add:"+item.Name),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "back"), "cat:"+item.Category),
		),
	)
	_, err = b.api.Send(m)
	return err
}

// ---------- Purchases ----------

func (b *Bot) buyItem(ctx context.Context, userID int64, name string) error {
	lang := b.lang(ctx, userID)

	r, err := b.checkout.Purchase(ctx, userID, name)
	return b.reportPurchase(userID, lang, name, r, err)
}

func (b *Bot) reportPurchase(userID int64, lang, name string, r *receipts.Receipt, err error) error {
	switch {
	case err == nil:
		metrics.PurchasesTotal.WithLabelValues("delivered").Inc()
		m := tgbotapi.NewMessage(userID, fmt.Sprintf(msg(lang, "delivered"), r.Item, r.Payload, r.ID))
		m.ParseMode = "Markdown"
		_, err := b.api.Send(m)
		return err
	case errors.Is(err, checkout.ErrOutOfStock):
		metrics.PurchasesTotal.WithLabelValues("out_of_stock").Inc()
		return b.sendText(userID, fmt.Sprintf(msg(lang, "out_of_stock"), name))
	case errors.Is(err, checkout.ErrInsufficientFunds):
		metrics.PurchasesTotal.WithLabelValues("insufficient_funds").Inc()
		return b.sendText(userID, fmt.Sprintf(msg(lang, "no_funds"), name))
	default:
		metrics.PurchasesTotal.WithLabelValues("error").Inc()
		b.logger.Error("purchase failed", "user_id", userID, "item", name, "error", err)
		return b.sendText(userID, fmt.Sprintf(msg(lang, "purchase_failed"), name))
	}
}

func (b *Bot) addToBasket(ctx context.Context, userID int64, name string) error {
	lang := b.lang(ctx, userID)

	if _, err := b.catalog.Get(ctx, name); err != nil {
		return b.sendText(userID, msg(lang, "no_items"))
	}

	st := b.getState(userID)
	st.Basket = append(st.Basket, name)
	b.setState(userID, st)

	return b.sendText(userID, fmt.Sprintf(msg(lang, "added_to_basket"), name))
}

func (b *Bot) showBasket(ctx context.Context, userID int64) error {
	lang := b.lang(ctx, userID)

	st := b.getState(userID)
	if len(st.Basket) == 0 {
		return b.sendText(userID, msg(lang, "basket_empty"))
	}

	var lines []string
	var total int64
	for _, name := range st.Basket {
		item, err := b.catalog.Get(ctx, name)
		if err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("• %s — %s EUR", item.Name, money.Format(item.Price)))
		total += item.Price
	}

	m := tgbotapi.NewMessage(userID, fmt.Sprintf(msg(lang, "basket_view"),
		strings.Join(lines, "\n"), money.Format(total)))
	m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "basket_checkout"), "bask:checkout"),
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "basket_clear"), "bask:clear"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "back"), "menu"),
		),
	)
	_, err := b.api.Send(m)
	return err
}

func (b *Bot) clearBasket(ctx context.Context, userID int64) error {
	lang := b.lang(ctx, userID)

	st := b.getState(userID)
	st.Basket = nil
	b.setState(userID, st)

	return b.sendText(userID, msg(lang, "basket_cleared"))
}

func (b *Bot) checkoutBasket(ctx context.Context, userID int64) error {
	lang := b.lang(ctx, userID)

	st := b.getState(userID)
	if len(st.Basket) == 0 {
		return b.sendText(userID, msg(lang, "basket_empty"))
	}
	items := st.Basket
	st.Basket = nil
	b.setState(userID, st)

	results, err := b.checkout.CheckoutBasket(ctx, userID, items)
	if err != nil {
		return err
	}
	for _, res := range results {
		if err := b.reportPurchase(userID, lang, res.Item, res.Receipt, res.Err); err != nil {
			return err
		}
	}
	return nil
}

// ---------- Profile ----------

func (b *Bot) showProfile(ctx context.Context, userID int64) error {
	lang := b.lang(ctx, userID)

	balance, err := b.ledger.GetBalance(ctx, userID)
	if err != nil {
		return err
	}
	toppedUp, err := b.ledger.TotalToppedUp(ctx, userID)
	if err != nil {
		return err
	}
	list, err := b.receipts.ListByUser(ctx, userID)
	if err != nil {
		return err
	}

	m := tgbotapi.NewMessage(userID, fmt.Sprintf(msg(lang, "profile"),
		money.Format(balance), money.Format(toppedUp), len(list)))
	m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "receipts"), "receipts"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "back"), "menu"),
		),
	)
	_, err = b.api.Send(m)
	return err
}

func (b *Bot) showReceipts(ctx context.Context, userID int64) error {
	lang := b.lang(ctx, userID)

	list, err := b.receipts.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return b.sendText(userID, msg(lang, "no_receipts"))
	}

	var sb strings.Builder
	sb.WriteString(msg(lang, "receipts"))
	sb.WriteString("\n")
	for _, r := range list {
		fmt.Fprintf(&sb, "\n%s — %s (%s EUR)\n`%s`\n",
			r.CreatedAt.Format("2006-01-02"), r.Item, money.Format(r.Price), r.Payload)
	}

	m := tgbotapi.NewMessage(userID, sb.String())
	m.ParseMode = "Markdown"
	_, err = b.api.Send(m)
	return err
}

func (b *Bot) showReferral(ctx context.Context, userID int64) error {
	lang := b.lang(ctx, userID)

	count, err := b.users.CountReferrals(ctx, userID)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("https://t.me/%s?start=%d", b.username, userID)
	return b.sendText(userID, fmt.Sprintf(msg(lang, "referral_info"),
		link, count, b.cfg.ReferralPct))
}

// ---------- Top-up ----------

func (b *Bot) startTopup(ctx context.Context, userID int64) error {
	lang := b.lang(ctx, userID)

	st := b.getState(userID)
	st.Flow = "topup_amount"
	b.setState(userID, st)

	return b.sendText(userID, fmt.Sprintf(msg(lang, "topup_amount"),
		money.Format(b.cfg.MinTopup), money.Format(b.cfg.MaxTopup)))
}

func (b *Bot) showMethodPicker(ctx context.Context, userID int64, amount int64) error {
	lang := b.lang(ctx, userID)

	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(msg(lang, "method_card"),
				fmt.Sprintf("topup:m:%s:%d", provider.MethodFiat, amount)),
		),
	}
	row := []tgbotapi.InlineKeyboardButton{}
	for _, c := range provider.CryptoCurrencies {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(strings.ToUpper(c),
			fmt.Sprintf("topup:m:%s:%d", c, amount)))
		if len(row) == 3 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(msg(lang, "back"), "menu"),
	))

	m := tgbotapi.NewMessage(userID, fmt.Sprintf(msg(lang, "topup_method"), money.Format(amount)))
	m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err := b.api.Send(m)
	return err
}

func (b *Bot) createInvoice(ctx context.Context, userID int64, data string) error {
	lang := b.lang(ctx, userID)

	// data is "<method>:<amount cents>"
	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return nil
	}
	method := parts[0]
	var amount int64
	if _, err := fmt.Sscanf(parts[1], "%d", &amount); err != nil {
		return nil
	}

	if _, err := b.engine.StartInvoice(ctx, userID, amount, method); err != nil {
		if errors.Is(err, payments.ErrAmountOutOfBounds) {
			return b.sendText(userID, fmt.Sprintf(msg(lang, "topup_out_of_range"),
				money.Format(b.cfg.MinTopup), money.Format(b.cfg.MaxTopup)))
		}
		b.logger.Error("invoice creation failed", "user_id", userID, "method", method, "error", err)
		return b.sendText(userID, msg(lang, "invoice_failed"))
	}
	// PresentInvoice already delivered the payment message.
	return nil
}

func (b *Bot) checkPayment(ctx context.Context, userID int64, invoiceID string) error {
	lang := b.lang(ctx, userID)

	outcome, err := b.engine.Check(ctx, userID, invoiceID)
	if err != nil {
		return b.sendText(userID, msg(lang, "check_error"))
	}
	switch outcome {
	case payments.OutcomeCredited:
		return b.sendText(userID, msg(lang, "check_credited"))
	case payments.OutcomeExpired:
		return b.sendText(userID, msg(lang, "check_expired"))
	case payments.OutcomeNotFound:
		return b.sendText(userID, msg(lang, "check_not_found"))
	default:
		return b.sendText(userID, msg(lang, "check_pending"))
	}
}

func (b *Bot) cancelPayment(ctx context.Context, userID int64, invoiceID string) error {
	lang := b.lang(ctx, userID)
	if !b.engine.Cancel(ctx, userID, invoiceID) {
		return b.sendText(userID, msg(lang, "check_not_found"))
	}
	return b.sendText(userID, msg(lang, "cancelled"))
}
