package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alphahunter/monitor/internal/observ"
)

type PusherConfig struct {
	BaseURL  string
	Token    string
	Timeout  time.Duration
	Template string
}

// Pusher delivers markdown notifications to the push endpoint. Delivery is
// fire-and-forget: failures are logged and counted, never retried
// synchronously and never surfaced as fatal.
type Pusher struct {
	mu       sync.RWMutex
	http     *resty.Client
	token    string
	template string
}

func NewPusher(cfg PusherConfig) *Pusher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Template == "" {
		cfg.Template = "markdown"
	}
	return &Pusher{
		http:     resty.New().SetBaseURL(cfg.BaseURL).SetTimeout(cfg.Timeout),
		token:    cfg.Token,
		template: cfg.Template,
	}
}

// UpdateToken swaps the credential after a config hot-reload.
func (p *Pusher) UpdateToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
}

type pushRequest struct {
	Token    string `json:"token"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Template string `json:"template"`
}

type pushResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Send posts one notification. An empty token disables pushing entirely.
func (p *Pusher) Send(ctx context.Context, title, content string) {
	p.mu.RLock()
	token, template := p.token, p.template
	p.mu.RUnlock()
	if token == "" {
		return
	}

	var body pushResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(pushRequest{Token: token, Title: title, Content: content, Template: template}).
		SetResult(&body).
		Post("/send")
	if err != nil {
		observ.Warn("push_failed", map[string]any{"title": title, "error": err.Error()})
		observ.IncCounter("push_failures_total", nil)
		return
	}
	if resp.IsError() || (body.Code != 0 && body.Code != 200) {
		observ.Warn("push_rejected", map[string]any{
			"title": title, "status": resp.StatusCode(), "code": body.Code, "msg": body.Msg,
		})
		observ.IncCounter("push_failures_total", nil)
		return
	}
	observ.IncCounter("push_sent_total", nil)
}
