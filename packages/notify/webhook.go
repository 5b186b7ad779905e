package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apihttp "github.com/abdul-hamid-achik/apismoke/packages/http"
)

const webhookTimeout = 10 * time.Second

func newWebhookClient() *apihttp.Client {
	return apihttp.NewClient(
		apihttp.WithTimeout(webhookTimeout),
		apihttp.WithRequestIDs(false),
		apihttp.WithDefaultHeaders(map[string]string{
			"User-Agent": "apismoke-notify",
			"Connection": "keep-alive",
		}),
	)
}

// postJSON sends payload to a webhook and accepts any of the ok statuses
func postJSON(client *apihttp.Client, service, webhookURL string, payload any, ok ...int) error {
	req := apihttp.NewRequest(http.MethodPost, webhookURL)
	if err := req.SetJSONBody(payload); err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", service, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 4*webhookTimeout)
	defer cancel()
	resp, err := client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send %s notification: %w", service, err)
	}
	for _, code := range ok {
		if resp.StatusCode == code {
			return nil
		}
	}
	return fmt.Errorf("%s webhook returned status %d: %s", service, resp.StatusCode, resp.BodyString())
}
