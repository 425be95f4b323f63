//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type Cfg struct {
	GatewayURL string
	MailhogAPI string
}

func LoadCfg() Cfg {
	return Cfg{
		GatewayURL: getenv("IT_GATEWAY_URL", "http://127.0.0.1:8080"),
		MailhogAPI: getenv("IT_MAILHOG_API", "http://127.0.0.1:18025"),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func WaitHealthz(t *testing.T, base string, timeout time.Duration) {
	t.Helper()
	u := strings.TrimRight(base, "/") + "/healthz"
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(u)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				t.Logf("[it] healthz OK: %s", u)
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("[it] healthz failed: %s", u)
}

// UniqueEmail keeps runs against a long-lived database independent.
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.com", prefix, time.Now().UnixNano())
}

type MHResp struct {
	Total int
	Items []struct {
		Content struct {
			Headers map[string][]string `json:"Headers"`
			Body    string              `json:"Body"`
		} `json:"Content"`
	}
}

func MailhogReachable(api string) bool {
	resp, err := http.Get(strings.TrimRight(api, "/") + "/api/v2/messages?limit=1")
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func mailhogSearch(api, to string) (MHResp, error) {
	u := strings.TrimRight(api, "/") + "/api/v2/search?kind=to&query=" + url.QueryEscape(to)
	resp, err := http.Get(u)
	if err != nil {
		return MHResp{}, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return MHResp{}, fmt.Errorf("mailhog http %d: %s", resp.StatusCode, string(b))
	}
	var out MHResp
	err = json.Unmarshal(b, &out)
	return out, err
}

var tokenParam = regexp.MustCompile(`[?&]token=([A-Za-z0-9%_\-.~]+)`)

// WaitResetToken polls MailHog until a mail to the address arrives and
// returns the token from its reset link.
func WaitResetToken(t *testing.T, api, to string, timeout time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		r, err := mailhogSearch(api, to)
		if err == nil && len(r.Items) > 0 {
			body := r.Items[0].Content.Body
			m := tokenParam.FindStringSubmatch(body)
			require.Len(t, m, 2, "no reset link in %q", body)
			tok, err := url.QueryUnescape(m[1])
			require.NoError(t, err)
			return tok
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("[mailhog] no mail to %s", to)
	return ""
}
