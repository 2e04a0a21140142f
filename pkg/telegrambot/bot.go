package telegrambot

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	telebot "gopkg.in/telebot.v3"

	"vpn-access-bot/internal/config"
	"vpn-access-bot/internal/constants"
	"vpn-access-bot/internal/models"
	"vpn-access-bot/internal/services"
	"vpn-access-bot/internal/texts"
)

// issuerAPI is the issuance surface the bot drives
type issuerAPI interface {
	IssueAccess(ctx context.Context, userID int64, planCode string) (*models.IssuedCredential, error)
	ListInbounds(ctx context.Context) ([]models.Inbound, error)
}

// botStore is the read/write surface the bot needs from storage
type botStore interface {
	UpsertUser(userID int64, lang string) error
	GetUserLang(userID int64, fallback string) string
	GetUserKey(userID int64) (*models.UserKey, error)
	GetSubscription(userID int64) (*models.SubscriptionRecord, error)
}

// planOrder fixes the plan button order in the tariff keyboard
var planOrder = []string{"trial", "1m", "3m", "12m"}

var planTitles = map[string]map[string]string{
	"ru": {"trial": "Пробный период", "1m": "1 мес", "3m": "3 мес", "12m": "12 мес"},
	"en": {"trial": "Trial period", "1m": "1 month", "3m": "3 months", "12m": "12 months"},
}

// Bot is the Telegram front end: member plan/profile flows, admin
// diagnostics, and the delivery channel for reminders and credentials.
type Bot struct {
	bot       *telebot.Bot
	cfg       *config.Config
	store     botStore
	issuer    issuerAPI
	qrService *services.QRService
	logger    *logrus.Logger
}

// NewBot creates a new Telegram bot
func NewBot(
	cfg *config.Config,
	store botStore,
	issuer issuerAPI,
	qrService *services.QRService,
	logger *logrus.Logger,
) (*Bot, error) {
	settings := telebot.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			logger.Errorf("Telegram bot error: %v", err)
		},
	}

	b, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	bot := &Bot{
		bot:       b,
		cfg:       cfg,
		store:     store,
		issuer:    issuer,
		qrService: qrService,
		logger:    logger,
	}
	bot.setupHandlers()

	return bot, nil
}

// Start runs the bot until the context is cancelled
func (b *Bot) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.logger.Info("Stopping Telegram bot")
		b.bot.Stop()
	}()

	b.logger.Info("Starting Telegram bot")
	b.bot.Start()
}

func (b *Bot) setupHandlers() {
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/plans", b.handlePlans)
	b.bot.Handle("/profile", b.handleProfile)
	b.bot.Handle("/grant", b.handleGrant)
	b.bot.Handle("/inbounds", b.handleInbounds)
	b.bot.Handle(telebot.OnCallback, b.handleCallback)
}

// userLang records the sender and returns their render language
func (b *Bot) userLang(c telebot.Context) string {
	lang := texts.Normalize(c.Sender().LanguageCode)
	if err := b.store.UpsertUser(c.Sender().ID, lang); err != nil {
		b.logger.Warnf("Failed to upsert user %d: %v", c.Sender().ID, err)
	}
	return lang
}

func (b *Bot) isAdmin(userID int64) bool {
	for _, id := range b.cfg.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (b *Bot) handleStart(c telebot.Context) error {
	lang := b.userLang(c)
	return c.Send(texts.T(lang, "start"), b.plansMarkup(lang), telebot.ModeHTML)
}

func (b *Bot) handlePlans(c telebot.Context) error {
	lang := b.userLang(c)
	return c.Send(texts.T(lang, "plans_title"), b.plansMarkup(lang), telebot.ModeHTML)
}

func (b *Bot) handleProfile(c telebot.Context) error {
	lang := b.userLang(c)

	key, err := b.store.GetUserKey(c.Sender().ID)
	if err != nil {
		b.logger.Errorf("Failed to load key for user %d: %v", c.Sender().ID, err)
		return c.Send(texts.T(lang, "issue_failed"))
	}
	if key == nil || key.VlessURI == "" {
		return c.Send(texts.T(lang, "profile_empty"), b.plansMarkup(lang))
	}

	planTitle := "—"
	expiresAt := "—"
	sub, err := b.store.GetSubscription(c.Sender().ID)
	if err == nil && sub != nil {
		if title, ok := planTitles[lang][sub.PlanCode]; ok {
			planTitle = title
		} else if sub.PlanCode != "" {
			planTitle = sub.PlanCode
		}
		if expires, perr := time.Parse(time.RFC3339, sub.ExpiresAt); perr == nil {
			expiresAt = expires.Format(constants.DateFormat)
		}
	}

	text := fmt.Sprintf(texts.T(lang, "profile"), planTitle, expiresAt, key.VlessURI, key.SubURL)
	if err := c.Send(text, telebot.ModeHTML); err != nil {
		return err
	}
	return b.sendQR(c.Sender().ID, key.SubURL)
}

// handleGrant lets an admin issue access manually: /grant <user_id> <plan>
func (b *Bot) handleGrant(c telebot.Context) error {
	lang := b.userLang(c)
	if !b.isAdmin(c.Sender().ID) {
		return c.Send(texts.T(lang, "no_access"))
	}

	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /grant <user_id> <plan>")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		return c.Send("Usage: /grant <user_id> <plan>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cred, err := b.issuer.IssueAccess(ctx, userID, args[1])
	if err != nil {
		return c.Send(fmt.Sprintf("upstream error: %v", err))
	}

	if err := b.SendIssued(userID, cred); err != nil {
		b.logger.Warnf("Granted access but failed to notify user %d: %v", userID, err)
	}
	return c.Send(fmt.Sprintf("Issued %s for user %d\nsubId: %s", args[1], userID, cred.SubID))
}

// handleInbounds is an admin diagnostic listing the panel's inbounds
func (b *Bot) handleInbounds(c telebot.Context) error {
	lang := b.userLang(c)
	if !b.isAdmin(c.Sender().ID) {
		return c.Send(texts.T(lang, "no_access"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	inbounds, err := b.issuer.ListInbounds(ctx)
	if err != nil {
		return c.Send(fmt.Sprintf("upstream error: %v", err))
	}
	if len(inbounds) == 0 {
		return c.Send("No inbounds configured on the panel.")
	}

	var sb strings.Builder
	sb.WriteString("Inbounds:\n")
	for _, inbound := range inbounds {
		stream := inbound.StreamConfig()
		fmt.Fprintf(&sb, "\n#%d %s — %s/%s, port %d, security %s, %d clients",
			inbound.ID, inbound.Remark, inbound.Protocol, stream.Network,
			inbound.Port, stream.Security, len(inbound.ClientSettings().Clients))
	}
	return c.Send(sb.String())
}

func (b *Bot) handleCallback(c telebot.Context) error {
	data := strings.TrimSpace(strings.TrimPrefix(c.Callback().Data, "\f"))
	lang := b.userLang(c)

	if data == "plans" {
		if err := c.Respond(); err != nil {
			return err
		}
		return c.Send(texts.T(lang, "plans_title"), b.plansMarkup(lang))
	}

	code, ok := strings.CutPrefix(data, "plan:")
	if !ok {
		return c.Respond()
	}

	// Only the trial plan is issued straight from chat; paid plans go
	// through the payment provider and arrive via the webhook.
	if code != "trial" {
		if err := c.Respond(); err != nil {
			return err
		}
		return c.Send(texts.T(lang, "plans_title"), b.plansMarkup(lang))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cred, err := b.issuer.IssueAccess(ctx, c.Sender().ID, code)
	if err != nil {
		b.logger.Errorf("Trial issuance failed for user %d: %v", c.Sender().ID, err)
		if err := c.Respond(); err != nil {
			return err
		}
		return c.Send(texts.T(lang, "issue_failed"))
	}

	if err := c.Respond(); err != nil {
		return err
	}
	return b.SendIssued(c.Sender().ID, cred)
}

// plansMarkup builds the tariff keyboard for known plans
func (b *Bot) plansMarkup(lang string) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}

	var rows []telebot.Row
	for _, code := range planOrder {
		if _, known := b.cfg.Plans[code]; !known {
			continue
		}
		title := planTitles[lang][code]
		if title == "" {
			title = code
		}
		rows = append(rows, telebot.Row{telebot.Btn{Text: title, Data: "plan:" + code}})
	}
	markup.Inline(rows...)
	return markup
}

// renewMarkup builds the single renew button shown under reminders
func (b *Bot) renewMarkup(lang string) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	markup.Inline(telebot.Row{telebot.Btn{Text: texts.T(lang, "renew_button"), Data: "plans"}})
	return markup
}

// SendIssued delivers a freshly issued credential to the user,
// implementing the webhook's CredentialSender
func (b *Bot) SendIssued(userID int64, cred *models.IssuedCredential) error {
	lang := b.store.GetUserLang(userID, "ru")
	text := fmt.Sprintf(texts.T(lang, "issued"), cred.VlessURI, cred.SubURL)

	recipient := &telebot.User{ID: userID}
	if _, err := b.bot.Send(recipient, text, telebot.ModeHTML); err != nil {
		return err
	}
	return b.sendQR(userID, cred.SubURL)
}

// SendReminder delivers a renewal reminder, implementing the
// scheduler's Notifier
func (b *Bot) SendReminder(userID int64, lang, kind string) error {
	text := texts.T(lang, "renew_"+kind)
	recipient := &telebot.User{ID: userID}
	_, err := b.bot.Send(recipient, text, b.renewMarkup(lang))
	return err
}

func (b *Bot) sendQR(userID int64, link string) error {
	qrBytes, err := b.qrService.GenerateQR(link)
	if err != nil {
		return err
	}

	photo := &telebot.Photo{File: telebot.FromReader(bytes.NewReader(qrBytes))}
	_, err = b.bot.Send(&telebot.User{ID: userID}, photo)
	return err
}
