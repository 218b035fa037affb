package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"

	"lostfound-api/internal/config"
	"lostfound-api/internal/util"
)

// TwilioSender delivers one-time codes over SMS. The raw code passes
// through here and nowhere else; it is never logged.
type TwilioSender struct {
	client    *twilio.RestClient
	fromPhone string
	codeTTL   time.Duration
}

func NewTwilioSender(cfg *config.Config) *TwilioSender {
	twilioConfig := cfg.Twilio

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: twilioConfig.AccountSID,
		Password: twilioConfig.AuthToken,
	})

	util.Info("Twilio sender initialized",
		zap.String("from_phone", twilioConfig.FromPhone))

	return &TwilioSender{
		client:    client,
		fromPhone: twilioConfig.FromPhone,
		codeTTL:   cfg.OTP.TTL,
	}
}

func (s *TwilioSender) SendCode(ctx context.Context, mobile, code string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(mobile)
	params.SetFrom(s.fromPhone)
	params.SetBody(fmt.Sprintf("Your verification code is %s. It expires in %s.", code, formatTTL(s.codeTTL)))

	_, err := s.client.Api.CreateMessage(params)
	if err != nil {
		util.Error("Failed to send verification SMS",
			zap.String("key_hash", util.KeyHash(mobile)),
			zap.Error(err))
		return fmt.Errorf("failed to send verification SMS: %w", err)
	}

	util.Info("Verification SMS sent",
		zap.String("key_hash", util.KeyHash(mobile)))
	return nil
}

// formatTTL renders a duration the way a human reads an SMS: whole
// minutes when possible, seconds otherwise.
func formatTTL(ttl time.Duration) string {
	if ttl >= time.Minute && ttl%time.Minute == 0 {
		minutes := int(ttl.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	seconds := int(ttl.Seconds())
	if seconds == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", seconds)
}

// LogSender is the development fallback when Twilio is disabled. It
// reports delivery without revealing the code.
type LogSender struct{}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (s *LogSender) SendCode(ctx context.Context, mobile, code string) error {
	util.Info("Verification code issued (delivery disabled)",
		zap.String("key_hash", util.KeyHash(mobile)),
		zap.Int("code_length", len(code)))
	return nil
}
