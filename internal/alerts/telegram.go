package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pci-pair-trader/internal/config"
	"pci-pair-trader/internal/strategy"

	"go.uber.org/zap"
)

const telegramBaseURL = "https://api.telegram.org"

var (
	ErrNotStopLoss    = errors.New("trade did not exit on the stop-loss")
	errMissingChannel = errors.New("telegram token and chat_id are required")
)

// RunSummary is the end-of-run totals posted once per pipeline run.
type RunSummary struct {
	RunID       string
	Windows     int
	PairsTraded int
	Summary     strategy.Summary
}

// Telegram posts trading alerts to one chat. Stop-losses notify loudly, run
// summaries are delivered silently. A disabled alerter accepts everything and
// sends nothing.
type Telegram struct {
	cfg      config.TelegramConfig
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) *Telegram {
	return newTelegram(cfg, log, telegramBaseURL, nil)
}

func newTelegram(cfg config.TelegramConfig, log *zap.Logger, baseURL string, client *http.Client) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	cfg.Token = strings.TrimSpace(cfg.Token)
	cfg.ChatID = strings.TrimSpace(cfg.ChatID)
	return &Telegram{
		cfg:      cfg,
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(baseURL, "/"), cfg.Token),
		client:   client,
		log:      log,
	}
}

// SendStopLoss reports a position closed by the stop-loss.
func (t *Telegram) SendStopLoss(ctx context.Context, trade strategy.Trade) error {
	if trade.ExitType != strategy.ExitStopLoss {
		return fmt.Errorf("%s %s: %w", trade.PairKey, trade.WindowKey, ErrNotStopLoss)
	}
	return t.post(ctx, sendMessageRequest{Text: stopLossText(trade)})
}

// SendRunSummary reports the totals of a finished run.
func (t *Telegram) SendRunSummary(ctx context.Context, run RunSummary) error {
	return t.post(ctx, sendMessageRequest{Text: runSummaryText(run), DisableNotification: true})
}

type sendMessageRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) post(ctx context.Context, msg sendMessageRequest) error {
	if !t.cfg.Enabled {
		return nil
	}
	if t.cfg.Token == "" || t.cfg.ChatID == "" {
		return errMissingChannel
	}
	msg.ChatID = t.cfg.ChatID
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var result apiResponse
	decodeErr := json.Unmarshal(raw, &result)
	switch {
	case decodeErr == nil && !result.OK:
		desc := strings.TrimSpace(result.Description)
		if desc == "" {
			desc = fmt.Sprintf("http %d", resp.StatusCode)
		}
		return fmt.Errorf("telegram send: %s", desc)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("telegram send: http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	t.log.Debug("telegram alert sent", zap.Int("bytes", len(body)))
	return nil
}

func stopLossText(trade strategy.Trade) string {
	return fmt.Sprintf("STOP LOSS %s (%s)\n%s position opened %s at z=%.2f, closed %s at z=%.2f\npnl %.2f%%",
		trade.PairKey, trade.WindowKey, trade.Position,
		trade.EntryDate.Format(time.DateOnly), trade.EntryZScore,
		trade.ExitDate.Format(time.DateOnly), trade.ExitZScore,
		trade.PnL*100)
}

func runSummaryText(run RunSummary) string {
	s := run.Summary
	return fmt.Sprintf("run %s finished\nwindows %d, pairs traded %d\ntrades %d (wins %d, stop-losses %d)\ntotal pnl %.2f%%, sharpe %.2f, max drawdown %.2f%%",
		run.RunID, run.Windows, run.PairsTraded,
		s.Trades, s.Wins, s.StopLosses,
		s.TotalPnL*100, s.Sharpe, s.MaxDrawdown*100)
}
