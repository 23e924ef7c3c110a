package bot

// Message catalog, keyed by language then message key. Russian mirrors the
// English set; unknown languages fall back to English.
var messages = map[string]map[string]string{
	"en": {
		"welcome":            "Welcome to the shop! Pick an option below.",
		"menu_shop":          "🏪 Shop",
		"menu_basket":        "🧺 Basket",
		"menu_profile":       "👤 Profile",
		"menu_topup":         "💳 Top up",
		"menu_referral":      "🤝 Referral",
		"menu_language":      "🌐 Язык: русский",
		"back":               "⬅️ Back",
		"categories":         "Choose a category:",
		"no_items":           "Nothing here yet.",
		"item_view":          "*%s*\n\n%s\n\nPrice: %s EUR\nIn stock: %s",
		"stock_unlimited":    "unlimited",
		"buy":                "🛒 Buy",
		"add_to_basket":      "➕ Add to basket",
		"added_to_basket":    "Added to basket: %s",
		"basket_empty":       "Your basket is empty.",
		"basket_view":        "In your basket:\n%s\nTotal: %s EUR",
		"basket_checkout":    "✅ Checkout",
		"basket_clear":       "🗑 Clear",
		"basket_cleared":     "Basket cleared.",
		"delivered":          "✅ %s\n\n`%s`\n\nReceipt: %s",
		"out_of_stock":       "❌ %s is out of stock.",
		"no_funds":           "❌ Not enough balance for %s. Top up first.",
		"purchase_failed":    "❌ Could not complete the purchase of %s. Try again later.",
		"profile":            "👤 Profile\n\nBalance: %s EUR\nTopped up in total: %s EUR\nPurchases: %d",
		"receipts":           "🧾 Receipts",
		"no_receipts":        "No purchases yet.",
		"topup_amount":       "Enter the top-up amount in EUR (%s – %s):",
		"topup_bad_amount":   "That doesn't look like an amount. Enter a number like 25 or 9.99:",
		"topup_out_of_range": "Amount must be between %s and %s EUR.",
		"topup_method":       "Amount: %s EUR. Choose a payment method:",
		"method_card":        "💳 Card",
		"invoice_fiat":       "Invoice for %s EUR.\n\nPay by card via the button below. The invoice is valid until %s.",
		"invoice_crypto":     "Invoice for %s EUR.\n\nSend *%s %s* to the address:\n`%s`\n\nValid until %s.",
		"pay_button":         "💳 Pay",
		"check_button":       "🔄 Check payment",
		"cancel_button":      "❌ Cancel",
		"invoice_failed":     "Could not create the invoice. Try again later.",
		"check_credited":     "✅ Payment received! Your balance has been topped up.",
		"check_pending":      "⏳ Payment not seen yet. Try again in a minute.",
		"check_expired":      "⌛ This invoice has expired. Start a new top-up.",
		"check_not_found":    "Invoice not found.",
		"check_error":        "Payment service is unavailable right now. Try again shortly.",
		"resolved_anchor":    "✅ Paid. %s EUR credited. Balance: %s EUR.",
		"expired_anchor":     "⌛ Invoice expired. No funds were credited.",
		"cancelled":          "Invoice cancelled.",
		"referral_info":      "🤝 Share your link:\n%s\n\nInvited: %d\nYou earn %d%% of every top-up they make.",
		"referral_bonus":     "🎉 Referral bonus: %s EUR credited to your balance!",
		"language_set":       "Language switched to English.",
	},
	"ru": {
		"welcome":            "Добро пожаловать в магазин! Выберите раздел.",
		"menu_shop":          "🏪 Магазин",
		"menu_basket":        "🧺 Корзина",
		"menu_profile":       "👤 Профиль",
		"menu_topup":         "💳 Пополнить",
		"menu_referral":      "🤝 Рефералы",
		"menu_language":      "🌐 Language: English",
		"back":               "⬅️ Назад",
		"categories":         "Выберите категорию:",
		"no_items":           "Здесь пока пусто.",
		"item_view":          "*%s*\n\n%s\n\nЦена: %s EUR\nВ наличии: %s",
		"stock_unlimited":    "не ограничено",
		"buy":                "🛒 Купить",
		"add_to_basket":      "➕ В корзину",
		"added_to_basket":    "Добавлено в корзину: %s",
		"basket_empty":       "Корзина пуста.",
		"basket_view":        "В корзине:\n%s\nИтого: %s EUR",
		"basket_checkout":    "✅ Оформить",
		"basket_clear":       "🗑 Очистить",
		"basket_cleared":     "Корзина очищена.",
		"delivered":          "✅ %s\n\n`%s`\n\nЧек: %s",
		"out_of_stock":       "❌ %s закончился.",
		"no_funds":           "❌ Недостаточно средств для %s. Пополните баланс.",
		"purchase_failed":    "❌ Не удалось купить %s. Попробуйте позже.",
		"profile":            "👤 Профиль\n\nБаланс: %s EUR\nВсего пополнено: %s EUR\nПокупок: %d",
		"receipts":           "🧾 Чеки",
		"no_receipts":        "Покупок пока нет.",
		"topup_amount":       "Введите сумму пополнения в EUR (%s – %s):",
		"topup_bad_amount":   "Это не похоже на сумму. Введите число, например 25 или 9.99:",
		"topup_out_of_range": "Сумма должна быть от %s до %s EUR.",
		"topup_method":       "Сумма: %s EUR. Выберите способ оплаты:",
		"method_card":        "💳 Карта",
		"invoice_fiat":       "Счёт на %s EUR.\n\nОплатите картой по кнопке ниже. Счёт действителен до %s.",
		"invoice_crypto":     "Счёт на %s EUR.\n\nОтправьте *%s %s* на адрес:\n`%s`\n\nДействителен до %s.",
		"pay_button":         "💳 Оплатить",
		"check_button":       "🔄 Проверить оплату",
		"cancel_button":      "❌ Отменить",
		"invoice_failed":     "Не удалось создать счёт. Попробуйте позже.",
		"check_credited":     "✅ Оплата получена! Баланс пополнен.",
		"check_pending":      "⏳ Оплата пока не видна. Попробуйте через минуту.",
		"check_expired":      "⌛ Срок счёта истёк. Начните пополнение заново.",
		"check_not_found":    "Счёт не найден.",
		"check_error":        "Платёжный сервис недоступен. Попробуйте чуть позже.",
		"resolved_anchor":    "✅ Оплачено. %s EUR зачислено. Баланс: %s EUR.",
		"expired_anchor":     "⌛ Срок счёта истёк. Средства не зачислены.",
		"cancelled":          "Счёт отменён.",
		"referral_info":      "🤝 Ваша ссылка:\n%s\n\nПриглашено: %d\nВы получаете %d%% с каждого их пополнения.",
		"referral_bonus":     "🎉 Реферальный бонус: %s EUR зачислен на баланс!",
		"language_set":       "Язык переключён на русский.",
	},
}

// msg resolves a message key for a language, falling back to English.
func msg(lang, key string) string {
	if m, ok := messages[lang]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	return messages["en"][key]
}
