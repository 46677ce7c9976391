package ci

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const triggerTimeout = 60 * time.Second

// JenkinsTrigger fires a parameterized build through jenkins'
// remote-trigger endpoint.
type JenkinsTrigger struct {
	client *http.Client
}

func NewJenkinsTrigger() *JenkinsTrigger {
	return &JenkinsTrigger{client: &http.Client{Timeout: triggerTimeout}}
}

func (t *JenkinsTrigger) Build(ctx context.Context, baseURL, job, token string, params map[string]string) error {
	values := url.Values{}
	values.Set("token", token)
	for key, value := range params {
		values.Set(key, value)
	}

	endpoint := fmt.Sprintf("%s/job/%s/buildWithParameters", strings.TrimRight(baseURL, "/"), url.PathEscape(job))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("jenkins: status code %d", resp.StatusCode)
	}

	return nil
}
