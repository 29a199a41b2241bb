package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

var ErrGatewayAPI = errors.New("message gateway")

// WhatsAppNotifier posts messages to a WhatsApp Business compatible HTTP
// gateway. With no gateway URL configured it only logs the message, which is
// how local and test environments run.
type WhatsAppNotifier struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

type sendMessageRequest struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Text             sendMessageText `json:"text"`
}

type sendMessageText struct {
	Body string `json:"body"`
}

// gatewayError describes the JSON the gateway responds with on failure.
type gatewayError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func NewWhatsAppNotifier(url, token string, logger *zap.Logger) *WhatsAppNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(10*time.Second).
		SetRetryCount(1).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &WhatsAppNotifier{client: client, url: url, logger: logger}
}

func (n *WhatsAppNotifier) Send(ctx context.Context, phone, message string) error {
	if n.url == "" {
		n.logger.Info("whatsapp gateway not configured, message not sent",
			zap.String("to", phone), zap.Int("length", len(message)))
		return nil
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{
			MessagingProduct: "whatsapp",
			To:               phone,
			Type:             "text",
			Text:             sendMessageText{Body: message},
		}).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to reach message gateway: %w", err)
	}
	if resp.IsError() {
		return toGatewayError(resp)
	}
	return nil
}

func toGatewayError(resp *resty.Response) error {
	var ge gatewayError
	if err := json.Unmarshal(resp.Body(), &ge); err != nil || ge.Error.Message == "" {
		return errors.Join(ErrGatewayAPI, fmt.Errorf("(HTTP Status: %d)", resp.StatusCode()))
	}
	return errors.Join(ErrGatewayAPI, fmt.Errorf("(HTTP Status: %d)- %d: %s", resp.StatusCode(), ge.Error.Code, ge.Error.Message))
}
