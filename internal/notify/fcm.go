package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"floodwatch/internal/config"
)

// FCM error codes that mean the token will never work again.
const (
	fcmErrNotRegistered       = "NotRegistered"
	fcmErrInvalidRegistration = "InvalidRegistration"
)

// FCMProvider sends multicast pushes through the FCM HTTP API.
type FCMProvider struct {
	client   *resty.Client
	endpoint string
	log      zerolog.Logger
}

// NewFCMProvider creates an FCMProvider from config.
func NewFCMProvider(cfg config.FCMConfig, log zerolog.Logger) *FCMProvider {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "key="+cfg.ServerKey)

	return &FCMProvider{
		client:   client,
		endpoint: cfg.Endpoint,
		log:      log,
	}
}

type fcmRequest struct {
	RegistrationIDs []string               `json:"registration_ids"`
	Notification    fcmNotification        `json:"notification"`
	Data            map[string]string      `json:"data,omitempty"`
	Android         map[string]interface{} `json:"android,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

func (p *FCMProvider) SendMulticast(ctx context.Context, tokens []string, n Notification) ([]SendResult, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	data := make(map[string]string, len(n.Data)+1)
	for k, v := range n.Data {
		data[k] = v
	}
	if n.URL != "" {
		data["url"] = n.URL
	}

	body := fcmRequest{
		RegistrationIDs: tokens,
		Notification:    fcmNotification{Title: n.Title, Body: n.Body},
		Data:            data,
		Android: map[string]interface{}{
			"priority": "high",
		},
	}

	var parsed fcmResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&parsed).
		Post(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("fcm multicast: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fcm multicast: HTTP %d", resp.StatusCode())
	}

	results := make([]SendResult, len(tokens))
	for i, tok := range tokens {
		results[i] = SendResult{Token: tok}
		if i >= len(parsed.Results) {
			continue
		}
		if code := parsed.Results[i].Error; code != "" {
			results[i].Err = errors.New(code)
			results[i].Gone = code == fcmErrNotRegistered || code == fcmErrInvalidRegistration
		}
	}

	p.log.Debug().
		Int("success", parsed.Success).
		Int("failure", parsed.Failure).
		Msg("fcm multicast result")

	return results, nil
}
