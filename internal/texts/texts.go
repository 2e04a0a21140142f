// Package texts holds the localized user-facing copy for the bot and
// the reminder notifier. Russian is the default; English is the only
// other language the bot renders.
package texts

var messages = map[string]map[string]string{
	"ru": {
		"start": "Привет! Это VPN-бот.\n\nВыберите тариф, чтобы получить доступ, или откройте профиль, если доступ уже оформлен.",
		"plans_title":   "Доступные тарифы:",
		"profile_empty": "У вас пока нет активного ключа. Выберите тариф, чтобы оформить доступ.",
		"profile": "Ваш профиль\n\nТариф: %s\nДействует до: %s\n\nКлюч:\n<code>%s</code>\n\nПодписка:\n<code>%s</code>\n\nНажмите на ключ, чтобы скопировать.",
		"issued": "Оплата подтверждена. Вот ваш доступ:\n\nКлюч:\n<code>%s</code>\n\nПодписка:\n<code>%s</code>\n\nНажмите на ключ, чтобы скопировать.",
		"issue_failed":  "Не получилось выдать доступ. Попробуйте позже.",
		"renew_3d":      "Ваша подписка истекает через 3 дня. Продлите её, чтобы не потерять доступ.",
		"renew_1d":      "Ваша подписка истекает завтра. Самое время продлить.",
		"renew_0d":      "Ваша подписка истекает сегодня. Продлите её, чтобы остаться на связи.",
		"renew_expired": "Ваша подписка истекла. Выберите тариф, чтобы восстановить доступ.",
		"renew_button":  "Продлить",
		"no_access":     "Эта команда доступна только администраторам.",
	},
	"en": {
		"start": "Hi! This is the VPN bot.\n\nPick a plan to get access, or open your profile if you already have one.",
		"plans_title":   "Available plans:",
		"profile_empty": "You don't have an active key yet. Pick a plan to get access.",
		"profile": "Your profile\n\nPlan: %s\nValid until: %s\n\nKey:\n<code>%s</code>\n\nSubscription:\n<code>%s</code>\n\nTap the key to copy it.",
		"issued": "Payment confirmed. Here is your access:\n\nKey:\n<code>%s</code>\n\nSubscription:\n<code>%s</code>\n\nTap the key to copy it.",
		"issue_failed":  "Could not issue access. Please try again later.",
		"renew_3d":      "Your subscription expires in 3 days. Renew it to keep your access.",
		"renew_1d":      "Your subscription expires tomorrow. Time to renew.",
		"renew_0d":      "Your subscription expires today. Renew it to stay connected.",
		"renew_expired": "Your subscription has expired. Pick a plan to restore access.",
		"renew_button":  "Renew",
		"no_access":     "This command is only available to administrators.",
	},
}

// T returns the message for the given language and key, falling back
// to Russian and then to the key itself
func T(lang, key string) string {
	if m, ok := messages[lang]; ok {
		if text, ok := m[key]; ok {
			return text
		}
	}
	if text, ok := messages["ru"][key]; ok {
		return text
	}
	return key
}

// Normalize maps a Telegram language code to a supported language
func Normalize(code string) string {
	if code == "ru" {
		return "ru"
	}
	return "en"
}
