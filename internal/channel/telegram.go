package channel

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/logger"
)

// telegramLocalRetries is how many times a timed-out call is retried in
// place before the error is surfaced.
const telegramLocalRetries = 2

// TelegramSender sends messages through the Telegram Bot API. Credentials:
// Token is the bot token.
type TelegramSender struct {
	apiURL  string
	client  *http.Client
	limiter *rate.Limiter
	backoff time.Duration

	mu   sync.Mutex
	bots map[string]*tele.Bot
}

// NewTelegramSender creates a Telegram sender. apiURL may be empty for the
// public endpoint; ratePerSec bounds outbound calls across all bots.
func NewTelegramSender(apiURL string, ratePerSec float64) *TelegramSender {
	if ratePerSec <= 0 {
		ratePerSec = 25
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &TelegramSender{
		apiURL:  apiURL,
		client:  &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		backoff: 500 * time.Millisecond,
		bots:    make(map[string]*tele.Bot),
	}
}

// Channel implements Sender.
func (s *TelegramSender) Channel() domain.Channel { return domain.ChannelTelegram }

func (s *TelegramSender) bot(token string) (*tele.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bots[token]; ok {
		return b, nil
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		URL:     s.apiURL,
		Client:  s.client,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	s.bots[token] = b
	return b, nil
}

// Send delivers one Telegram message. Media is sent as a photo when it is
// an image and as a document otherwise, with the body as caption.
func (s *TelegramSender) Send(ctx context.Context, msg Message, creds domain.Credentials) (Result, error) {
	if err := ValidateDestination(domain.ChannelTelegram, msg.Destination); err != nil {
		return Failed("%v", err), nil
	}
	if creds.Token == "" {
		return Failed("Telegram bot token missing"), nil
	}
	chatID, _ := strconv.ParseInt(strings.TrimSpace(msg.Destination), 10, 64)

	b, err := s.bot(creds.Token)
	if err != nil {
		return Failed("telegram bot: %v", err), nil
	}

	var what interface{} = msg.Body
	if msg.MediaURL != "" {
		file := tele.FromURL(msg.MediaURL)
		if strings.HasPrefix(MediaType(msg.MediaURL), "image/") {
			what = &tele.Photo{File: file, Caption: msg.Body}
		} else {
			what = &tele.Document{File: file, Caption: msg.Body}
		}
	}

	var sent *tele.Message
	for attempt := 0; ; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return Result{}, err
		}
		sent, err = b.Send(tele.ChatID(chatID), what)
		if err == nil || !isTimeout(err) || attempt >= telegramLocalRetries {
			break
		}
		log.Printf("[Telegram] Timeout sending to %s, retry %d/%d", logger.RedactIdentifier(msg.Destination), attempt+1, telegramLocalRetries)
		select {
		case <-time.After(s.backoff * time.Duration(attempt+1)):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if err != nil {
		if telegramTransient(err) {
			return Result{}, err
		}
		return Failed("telegram: %v", err), nil
	}
	return Result{Success: true, ProviderMessageID: telegramMessageID(chatID, sent)}, nil
}

// telegramMessageID qualifies Telegram's per-chat message_id with the chat
// id so provider ids stay unique across chats.
func telegramMessageID(chatID int64, sent *tele.Message) string {
	if sent.Chat != nil && sent.Chat.ID != 0 {
		chatID = sent.Chat.ID
	}
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(sent.ID)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func telegramTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var flood *tele.FloodError
	if errors.As(err, &flood) {
		return true
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return isRetryableStatus(apiErr.Code)
	}
	return false
}
