package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liamashdown/whaletracker/internal/alerts"
	"github.com/liamashdown/whaletracker/internal/config"
	"github.com/liamashdown/whaletracker/internal/metrics"
	"github.com/liamashdown/whaletracker/internal/storage"
	"github.com/liamashdown/whaletracker/internal/whale"
)

const (
	checkpointKey   = "last_dispatched_ts"
	dispatchWorkers = 4
)

// Source supplies the alert buckets to dispatch
type Source interface {
	GetWhaleAlerts(ctx context.Context) whale.Alerts
}

// Ledger persists dispatched alerts and the dispatch checkpoint
type Ledger interface {
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error
	HasDispatched(ctx context.Context, key string) (bool, error)
	LastDispatchFor(ctx context.Context, address string) (time.Time, bool, error)
	RecordDispatch(ctx context.Context, alert *storage.DispatchedAlert) error
}

// Processor polls whale alerts and forwards new ones to the alert sender
type Processor struct {
	cfg          *config.Config
	source       Source
	ledger       Ledger
	alertSender  alerts.Sender
	workerPool   chan struct{}
	log          *logrus.Logger
	addressLocks sync.Map // Per-address locks so cooldown checks and inserts don't interleave
	now          func() time.Time
}

// New creates a new processor
func New(
	cfg *config.Config,
	source Source,
	ledger Ledger,
	alertSender alerts.Sender,
	log *logrus.Logger,
) *Processor {
	workerPool := make(chan struct{}, dispatchWorkers)
	for i := 0; i < dispatchWorkers; i++ {
		workerPool <- struct{}{}
	}

	return &Processor{
		cfg:         cfg,
		source:      source,
		ledger:      ledger,
		alertSender: alertSender,
		workerPool:  workerPool,
		log:         log,
		now:         time.Now,
	}
}

// candidate is one alert awaiting dispatch
type candidate struct {
	key     string
	payload *alerts.AlertPayload
}

// Run processes immediately and then on every poll interval until ctx is done
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.AlertPollInterval)
	defer ticker.Stop()

	p.log.WithField("interval", p.cfg.AlertPollInterval).Info("Starting alert dispatch loop")

	for {
		if err := p.ProcessAlerts(ctx); err != nil {
			p.log.WithError(err).Error("Error processing alerts")
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			p.log.Info("Alert dispatch loop stopped")
			return
		}
	}
}

// ProcessAlerts fetches the current alert buckets and dispatches anything not yet sent.
// Large transfers at or before the checkpoint are skipped outright. The checkpoint
// advances past cooldown-suppressed transfers too: suppression drops an alert, it
// does not defer it.
func (p *Processor) ProcessAlerts(ctx context.Context) error {
	lastStr, err := p.ledger.GetState(ctx, checkpointKey)
	if err != nil {
		return fmt.Errorf("get checkpoint: %w", err)
	}

	var lastTS int64
	if lastStr != "" {
		lastTS, _ = strconv.ParseInt(lastStr, 10, 64)
	}

	buckets := p.source.GetWhaleAlerts(ctx)
	candidates, maxTS := p.collect(buckets, lastTS)

	p.log.WithFields(logrus.Fields{
		"large_transfers": len(buckets.LargeTransfers),
		"risk_alerts":     len(buckets.RiskAlerts),
		"new_whales":      len(buckets.NewWhales),
		"candidates":      len(candidates),
		"checkpoint":      lastTS,
	}).Info("Fetched whale alerts")

	var wg sync.WaitGroup
	for _, c := range candidates {
		wg.Add(1)
		go func(c candidate) {
			defer wg.Done()

			// Acquire worker
			<-p.workerPool
			defer func() { p.workerPool <- struct{}{} }()

			if err := p.dispatch(ctx, c); err != nil {
				p.log.WithError(err).WithField("dedup_key", c.key).Error("Failed to dispatch alert")
			}
		}(c)
	}

	wg.Wait()

	if maxTS > lastTS {
		if err := p.ledger.SetState(ctx, checkpointKey, strconv.FormatInt(maxTS, 10)); err != nil {
			p.log.WithError(err).Error("Failed to update checkpoint")
		}
	}

	return nil
}

func (p *Processor) collect(buckets whale.Alerts, lastTS int64) ([]candidate, int64) {
	var out []candidate
	maxTS := lastTS

	for _, tx := range buckets.LargeTransfers {
		ts := tx.Timestamp.Unix()
		if ts > maxTS {
			maxTS = ts
		}
		if ts <= lastTS {
			continue
		}
		out = append(out, candidate{
			key:     transferKey(tx),
			payload: alerts.FromTransaction(tx, p.cfg.Environment),
		})
	}

	for _, in := range buckets.RiskAlerts {
		out = append(out, candidate{
			key:     insightKey(in),
			payload: alerts.FromInsight(in, p.cfg.Environment),
		})
	}

	for _, a := range buckets.NewWhales {
		out = append(out, candidate{
			key:     "whale:" + strings.ToLower(a.Address),
			payload: alerts.FromNewWhale(a, p.cfg.Environment, buckets.GeneratedAt),
		})
	}

	return out, maxTS
}

func (p *Processor) dispatch(ctx context.Context, c candidate) error {
	kind := string(c.payload.Kind)

	seen, err := p.ledger.HasDispatched(ctx, c.key)
	if err != nil {
		return fmt.Errorf("check dispatched: %w", err)
	}
	if seen {
		metrics.RecordAlert(kind, nil, true)
		return nil
	}

	address := strings.ToLower(c.payload.Address)
	if address != "" {
		lock := p.lockFor(address)
		lock.Lock()
		defer lock.Unlock()

		suppressed, err := p.inCooldown(ctx, address)
		if err != nil {
			p.log.WithError(err).Warn("Failed to get last alert")
		}
		if suppressed {
			p.log.WithFields(logrus.Fields{
				"address": c.payload.AddressShort,
				"kind":    kind,
			}).Info("Alert suppressed (cooldown)")
			metrics.RecordAlert(kind, nil, true)
			return nil
		}
	}

	record := &storage.DispatchedAlert{
		DedupKey:        c.key,
		Kind:            kind,
		Severity:        string(c.payload.Severity),
		Address:         address,
		TokenSymbol:     c.payload.TokenSymbol,
		AmountUSD:       c.payload.AmountUSD,
		TransactionHash: c.payload.TransactionHash,
		InsightType:     string(c.payload.InsightType),
		Title:           c.payload.Title,
		EventTS:         c.payload.Timestamp.Unix(),
		CreatedTS:       p.now().Unix(),
	}
	if err := p.ledger.RecordDispatch(ctx, record); err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}

	err = p.alertSender.Send(ctx, c.payload)
	metrics.RecordAlert(kind, err, false)
	return err
}

func (p *Processor) inCooldown(ctx context.Context, address string) (bool, error) {
	if p.cfg.AlertCooldownMins <= 0 {
		return false, nil
	}
	last, ok, err := p.ledger.LastDispatchFor(ctx, address)
	if err != nil || !ok {
		return false, err
	}
	return p.now().Sub(last) < time.Duration(p.cfg.AlertCooldownMins)*time.Minute, nil
}

func (p *Processor) lockFor(address string) *sync.Mutex {
	lock, _ := p.addressLocks.LoadOrStore(address, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// transferKey prefers the transaction hash and falls back to a derived one
func transferKey(tx whale.Transaction) string {
	if tx.Hash != "" {
		return "transfer:" + strings.ToLower(tx.Hash)
	}

	data := fmt.Sprintf("%s:%s:%d:%.2f",
		strings.ToLower(tx.From),
		strings.ToLower(tx.To),
		tx.Timestamp.Unix(),
		tx.AmountUSD,
	)
	return "transfer:" + digest(data)
}

// insightKey identifies an insight by what it found rather than its random ID,
// so the same pattern seen on consecutive polls is sent once
func insightKey(in whale.Insight) string {
	addrs := make([]string, len(in.RelatedAddresses))
	for i, a := range in.RelatedAddresses {
		addrs[i] = strings.ToLower(a)
	}
	sort.Strings(addrs)
	tokens := append([]string(nil), in.RelatedTokens...)
	sort.Strings(tokens)

	data := fmt.Sprintf("%s|%s|%s|%s",
		in.Type,
		in.Severity,
		strings.Join(addrs, ","),
		strings.Join(tokens, ","),
	)
	return "risk:" + string(in.Type) + ":" + digest(data)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
