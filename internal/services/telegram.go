package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramOpts параметры необходимые для инициализации сервиса TelegramBotService.
type TelegramOpts struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token" validate:"required_if=Enabled true"`
	ChatID  int64  `mapstructure:"chat_id"`
	Message string `mapstructure:"message"`
}

// ChatStore хранит чаты, подписанные на рассылку.
type ChatStore interface {
	SaveChat(ctx context.Context, chatID int64, title string) error
	RemoveChat(ctx context.Context, chatID int64) error
	ListChats(ctx context.Context) ([]int64, error)
}

// TelegramBotService сервис предназначенный для взаимодействия с telegram.
type TelegramBotService struct {
	opts     TelegramOpts
	logger   *slog.Logger
	bot      *tgbotapi.BotAPI
	chats    ChatStore
	reporter Reporter
}

// NewTelegramBot создает экземпляр сервиса для работы с telegram ботом.
func NewTelegramBot(opts TelegramOpts, chats ChatStore, reporter Reporter, logger *slog.Logger) (*TelegramBotService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	bot, err := tgbotapi.NewBotAPI(opts.Token)
	if err != nil {
		logger.Error("Failed to create Telegram bot", "error", err)
		return nil, fmt.Errorf("create Telegram bot: %w", err)
	}

	logger.Info("Telegram bot created successfully",
		"bot_user", bot.Self.UserName,
		"chat_id", opts.ChatID,
	)
	return &TelegramBotService{
		opts:     opts,
		logger:   logger,
		bot:      bot,
		chats:    chats,
		reporter: reporter,
	}, nil
}

// Start обрабатывает команды боту до отмены контекста.
func (s *TelegramBotService) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.bot.GetUpdatesChan(u)

	s.logger.Info("Telegram bot listening for commands")
	for {
		select {
		case <-ctx.Done():
			s.bot.StopReceivingUpdates()
			s.logger.Info("Telegram bot stopped")
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			msg := upd.Message
			if msg == nil || !msg.IsCommand() {
				continue
			}

			reply, file := s.handleCommand(ctx, msg.Chat.ID, chatTitle(msg.Chat), msg.Command(), msg.CommandArguments())
			if file != "" {
				if err := s.sendDocument(msg.Chat.ID, file); err != nil {
					reply = "Failed to send report: " + err.Error()
				}
			}
			if reply != "" {
				if _, err := s.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
					s.logger.Error("Failed to send reply", "chat_id", msg.Chat.ID, "error", err)
				}
			}
		}
	}
}

// handleCommand выполняет команду и возвращает текст ответа и путь к файлу для отправки.
func (s *TelegramBotService) handleCommand(ctx context.Context, chatID int64, title, command, args string) (string, string) {
	s.logger.Info("Telegram command received", "chat_id", chatID, "command", command)

	switch command {
	case "start":
		if s.chats == nil {
			return "Subscriptions are not available", ""
		}
		if err := s.chats.SaveChat(ctx, chatID, title); err != nil {
			return "Failed to subscribe: " + err.Error(), ""
		}
		return "Subscribed to Gantt reports", ""
	case "stop":
		if s.chats == nil {
			return "Subscriptions are not available", ""
		}
		if err := s.chats.RemoveChat(ctx, chatID); err != nil {
			return "Failed to unsubscribe: " + err.Error(), ""
		}
		return "Unsubscribed from Gantt reports", ""
	case "report":
		if s.reporter == nil {
			return "Reports are not available", ""
		}
		kindArg := strings.TrimSpace(args)
		if kindArg == "" {
			kindArg = string(KindSprint)
		}
		kind, err := ParseKind(kindArg)
		if err != nil {
			return "Usage: /report sprint|assignee", ""
		}
		res, err := s.reporter.Generate(ctx, kind)
		if err != nil {
			s.logger.Error("Report by command failed", "chat_id", chatID, "kind", kind, "error", err)
			return "Failed to generate report: " + err.Error(), ""
		}
		return "", res.Workbook
	default:
		return "Commands: /start, /stop, /report sprint|assignee", ""
	}
}

// SendFile отправляет файл в основной чат и во все подписанные чаты.
func (s *TelegramBotService) SendFile(ctx context.Context, path string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			s.logger.Error("File not found", "path", path, "error", err)
			return fmt.Errorf("file not found at %q: %w", path, err)
		}
		s.logger.Error("Failed to access file", "path", path, "error", err)
		return fmt.Errorf("access file at %q: %w", path, err)
	}

	recipients, err := s.recipients(ctx)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		s.logger.Warn("No telegram recipients configured", "path", path)
		return nil
	}

	var errs []error
	for _, chatID := range recipients {
		if err := s.sendDocument(chatID, path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *TelegramBotService) recipients(ctx context.Context) ([]int64, error) {
	return mergeRecipients(ctx, s.opts.ChatID, s.chats)
}

// mergeRecipients основной чат и подписчики без повторов.
func mergeRecipients(ctx context.Context, primary int64, chats ChatStore) ([]int64, error) {
	var ids []int64
	seen := make(map[int64]bool)
	if primary != 0 {
		ids = append(ids, primary)
		seen[primary] = true
	}
	if chats == nil {
		return ids, nil
	}

	subscribed, err := chats.ListChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribed chats: %w", err)
	}
	for _, id := range subscribed {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *TelegramBotService) sendDocument(chatID int64, path string) error {
	msg := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(path))
	msg.Caption = s.opts.Message

	if _, err := s.bot.Send(msg); err != nil {
		s.logger.Error("Failed to send file",
			"path", path,
			"chat_id", chatID,
			"error", err)
		return fmt.Errorf("send file to %d: %w", chatID, err)
	}

	s.logger.Info("File sent successfully",
		"path", path,
		"chat_id", chatID)
	return nil
}

func chatTitle(chat *tgbotapi.Chat) string {
	switch {
	case chat == nil:
		return ""
	case chat.Title != "":
		return chat.Title
	case chat.UserName != "":
		return "@" + chat.UserName
	default:
		return strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	}
}
