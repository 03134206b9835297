package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"voice-agent/internal/config"

	"github.com/CyCoreSystems/ari/v6"
	"github.com/CyCoreSystems/ari/v6/client/native"
	"github.com/CyCoreSystems/ari/v6/ext/play"
	"github.com/CyCoreSystems/ari/v6/ext/record"
)

// DialARI connects to Asterisk's REST interface and event websocket.
func DialARI(cfg config.ARIConfig) (ari.Client, error) {
	client, err := native.Connect(&native.Options{
		Application:  cfg.Application,
		Username:     cfg.Username,
		Password:     cfg.Password,
		URL:          cfg.URL,
		WebsocketURL: cfg.WebsocketURL,
	})
	if err != nil {
		return nil, fmt.Errorf("telephony: connect ari: %w", err)
	}
	return client, nil
}

const defaultResubscribeDelay = 5 * time.Second

var errSubscriptionClosed = errors.New("telephony: ari event subscription closed")

// ARIController adapts an Asterisk Stasis application to Controller.
//
// Calls are keyed by channel id. Recordings are saved as stored recordings
// named after ListenPolicy.Name and read back from recordingDir.
type ARIController struct {
	client       ari.Client
	app          string
	recordingDir string
	log          *slog.Logger

	subscribe        func() ari.Subscription
	resubscribeDelay time.Duration

	mu   sync.RWMutex
	sink EventSink
}

func NewARIController(client ari.Client, app, recordingDir string, log *slog.Logger) *ARIController {
	if log == nil {
		log = slog.Default()
	}
	return &ARIController{
		client:       client,
		app:          app,
		recordingDir: recordingDir,
		log:          log,
		subscribe: func() ari.Subscription {
			return client.Bus().Subscribe(nil, ari.Events.StasisStart, ari.Events.StasisEnd)
		},
		resubscribeDelay: defaultResubscribeDelay,
	}
}

// Run consumes Stasis events until ctx ends, delivering them to sink. A lost
// subscription is re-established after resubscribeDelay; live calls keep
// their sessions meanwhile.
func (c *ARIController) Run(ctx context.Context, sink EventSink) error {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()

	c.log.Info("listening for stasis events", "app", c.app)
	for {
		err := c.consume(ctx, c.subscribe())
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("stasis subscription lost, resubscribing", "err", err, "delay", c.resubscribeDelay.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.resubscribeDelay):
		}
	}
}

func (c *ARIController) consume(ctx context.Context, sub ari.Subscription) error {
	defer sub.Cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-sub.Events():
			if !ok {
				return errSubscriptionClosed
			}
			switch v := e.(type) {
			case *ari.StasisStart:
				go c.started(ctx, v.Channel.ID)
			case *ari.StasisEnd:
				c.emit(ctx, Event{Type: EventEnded, CallID: v.Channel.ID, At: time.Now()})
			}
		}
	}
}

func (c *ARIController) emit(ctx context.Context, e Event) {
	c.mu.RLock()
	sink := c.sink
	c.mu.RUnlock()
	if sink != nil {
		sink.HandleEvent(ctx, e)
	}
}

func (c *ARIController) handle(callID string) *ari.ChannelHandle {
	return c.client.Channel().Get(ari.NewKey(ari.ChannelKey, callID))
}

// started reads caller id and originate variables before announcing the call.
// Inbound calls carry none of the variables; lookups that fail are skipped.
func (c *ARIController) started(ctx context.Context, callID string) {
	h := c.handle(callID)
	vars := make(map[string]string, len(CallVars))
	for _, name := range CallVars {
		if v, err := h.GetVariable(name); err == nil && v != "" {
			vars[name] = v
		}
	}
	caller, err := h.GetVariable("CALLERID(num)")
	if err != nil || caller == "" {
		caller = vars[VarLeadNumber]
	}
	c.emit(ctx, Event{Type: EventStarted, CallID: callID, Caller: strings.TrimSpace(caller), Vars: vars, At: time.Now()})
}

func (c *ARIController) Answer(ctx context.Context, callID string) error {
	if err := c.handle(callID).Answer(); err != nil {
		return fmt.Errorf("telephony: answer %s: %w", callID, err)
	}
	return nil
}

func (c *ARIController) Play(ctx context.Context, callID, mediaURI, tag string) error {
	if callID == "" || mediaURI == "" {
		return fmt.Errorf("telephony: play requires call id and media")
	}
	h := c.handle(callID)
	go func() {
		err := play.Play(ctx, h, play.URI(mediaURI)).Err()
		c.emit(ctx, Event{Type: EventPlaybackFinished, CallID: callID, Tag: tag, Err: err, At: time.Now()})
	}()
	return nil
}

func (c *ARIController) Listen(ctx context.Context, callID string, p ListenPolicy) error {
	if callID == "" || p.Name == "" {
		return fmt.Errorf("telephony: listen requires call id and recording name")
	}
	h := c.handle(callID)
	go func() {
		e := Event{Type: EventSilenceDetected, CallID: callID}
		rslt, err := record.Record(ctx, h,
			record.Format("wav"),
			record.MaxDuration(p.MaxDuration),
			record.MaxSilence(p.MaxSilence),
			record.IfExists("overwrite"),
		).Result()
		if err == nil {
			err = rslt.Save(p.Name)
		}
		if err == nil {
			e.RecordingPath = filepath.Join(c.recordingDir, p.Name+".wav")
			if fi, statErr := os.Stat(e.RecordingPath); statErr == nil {
				e.RecordingBytes = fi.Size()
			}
		}
		e.Err = err
		e.At = time.Now()
		c.emit(ctx, e)
	}()
	return nil
}

func (c *ARIController) Hangup(ctx context.Context, callID string) error {
	if err := c.client.Channel().Hangup(ari.NewKey(ari.ChannelKey, callID), "normal"); err != nil {
		if IsChannelGone(err) {
			return nil
		}
		return fmt.Errorf("telephony: hangup %s: %w", callID, err)
	}
	return nil
}

func (c *ARIController) Originate(ctx context.Context, req OriginateRequest) (string, error) {
	if req.Endpoint == "" {
		return "", fmt.Errorf("telephony: originate requires an endpoint")
	}
	h, err := c.client.Channel().Originate(nil, ari.OriginateRequest{
		Endpoint:  req.Endpoint,
		App:       c.app,
		CallerID:  req.CallerID,
		Timeout:   int(req.Timeout.Seconds()),
		Variables: req.Vars,
	})
	if err != nil {
		return "", fmt.Errorf("telephony: originate %s: %w", req.Endpoint, err)
	}
	return h.ID(), nil
}

func (c *ARIController) Close() {
	c.client.Close()
}
