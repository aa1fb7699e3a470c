package twilio

import (
	"github.com/sheguard/sheguard/server/logger"
	"github.com/sheguard/sheguard/shared"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// maxSegmentLength is the largest message body sent in a single
// twilio API call; longer alerts are divided into parts.
const maxSegmentLength = 1500

var logg = logger.NewLogger()

type ClientWrapper struct {
	client   *twilio.RestClient
	config   shared.TwilioConfig
	testMode bool
}

func NewClient(config shared.TwilioConfig, testMode bool) *ClientWrapper {
	client := twilio.NewRestClientWithParams(twilio.RestClientParams{
		Username: config.AccountSid,
		Password: config.AuthToken,
	})

	return &ClientWrapper{
		client:   client,
		config:   config,
		testMode: testMode,
	}
}

// SendMessage sends 'msg' to 'to' via sms, dividing long message
// bodies into segments.
func (cw *ClientWrapper) SendMessage(to, msg string) error {
	for _, part := range DivideMessage(msg, maxSegmentLength) {
		if err := cw.sendSegment(to, part); err != nil {
			return err
		}
	}

	return nil
}

func (cw *ClientWrapper) sendSegment(to, msg string) error {
	// No need to hit the real twilio API in tests
	if cw.testMode {
		logg.Infof("[test mode] sms to %v: %v", to, msg)
		return nil
	}

	params := &openapi.CreateMessageParams{}
	params.SetMessagingServiceSid(cw.config.MessagingServiceSid)
	params.SetTo(to)
	params.SetBody(msg)

	resp, err := cw.client.ApiV2010.CreateMessage(params)
	if err != nil {
		return err
	}

	if resp.ErrorMessage != nil && *resp.ErrorMessage != "" {
		logg.Warnf("twilio message to %v accepted with error: %v", to, *resp.ErrorMessage)
	}

	return nil
}

// DivideMessage splits 'msg' into chunks of at most 'size' runes,
// mirroring sms multipart division.
func DivideMessage(msg string, size int) []string {
	if size <= 0 || len(msg) == 0 {
		return []string{msg}
	}

	var parts []string
	runes := []rune(msg)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}

	return parts
}
