package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailcss/internal"
	"mailcss/internal/config"
	"mailcss/internal/connectors"
	gmailconnector "mailcss/internal/connectors/gmail"
	imapconnector "mailcss/internal/connectors/imap"
	"mailcss/internal/inliner"
	"mailcss/internal/mail"
	"mailcss/internal/storage"
)

// Service polls a drafts mailbox and rewrites every new HTML draft with its
// CSS inlined.
type Service struct {
	db    *storage.DB
	cfg   config.Config
	conv  *inliner.Converter
	store connectors.DraftStore
	log   *zap.Logger
}

type CycleResult struct {
	Fetched   int
	Pending   int
	Converted int
	Unchanged int
	Failed    int
}

func NewService(db *storage.DB, cfg config.Config, conv *inliner.Converter, store connectors.DraftStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, cfg: cfg, conv: conv, store: store, log: log.Named("listener")}
}

// NewStore returns the draft store selected by DRAFTS_PROVIDER.
func NewStore(cfg config.Config) (connectors.DraftStore, error) {
	switch provider := strings.ToLower(strings.TrimSpace(cfg.DraftsProvider)); provider {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported drafts provider: %s", provider)
	}
}

// Run calls RunOnce every DRAFTS_INTERVAL_SEC until ctx is done. Cycle
// errors are logged and do not stop the loop.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.DraftsIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error("Listener cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunOnce processes every draft not seen before.
func (s *Service) RunOnce(ctx context.Context) (CycleResult, error) {
	fetch := connectors.NewFetchService(s.db, filepath.Join(s.cfg.OutputDir, "drafts"), s.store)
	fetched, err := fetch.FetchPending(s.cfg.DraftsMailbox, s.cfg.DraftsFetchMax)
	if err != nil {
		return CycleResult{}, err
	}

	result := CycleResult{Fetched: fetched.Fetched, Pending: len(fetched.Pending)}
	for _, d := range fetched.Pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		status, err := s.process(d)
		switch {
		case err != nil:
			result.Failed++
		case status == internal.DraftConverted:
			result.Converted++
		default:
			result.Unchanged++
		}
	}

	if err := s.db.SetMetadata("last_cycle", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return result, err
	}

	s.log.Info("Listener cycle done",
		zap.String("provider", s.cfg.DraftsProvider),
		zap.Int("fetched", result.Fetched),
		zap.Int("pending", result.Pending),
		zap.Int("converted", result.Converted),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *Service) process(d connectors.PendingDraft) (internal.DraftStatus, error) {
	traceID := uuid.NewString()
	log := s.log.With(zap.String("trace", traceID), zap.String("draft", d.ID))
	start := time.Now()

	out, status, err := s.convert(d)
	elapsed := time.Since(start)

	var errText *string
	if err != nil {
		status = internal.DraftFailed
		msg := err.Error()
		errText = &msg
		log.Warn("Draft conversion failed", zap.Error(err), zap.String("backup", d.BackupPath))
	}

	row, upsertErr := s.db.UpsertDraft(d.Provider, d.ID, d.MessageID, d.Subject, d.Hash, status, errText)
	if upsertErr != nil {
		return status, upsertErr
	}

	if status == internal.DraftConverted {
		// Remember what we wrote so the next cycle does not pick it up again.
		if _, err := s.db.UpsertDraft(d.Provider, d.ID, d.MessageID, d.Subject, connectors.Hash(out), internal.DraftOutput, nil); err != nil {
			return status, err
		}
	}

	timings := map[string]float64{"total_ms": float64(elapsed.Microseconds()) / 1000}
	counts := map[string]int{"input_bytes": len(d.Raw), "output_bytes": len(out)}
	if err := s.db.InsertRun(traceID, &row.ID, timings, counts); err != nil {
		return status, err
	}

	log.Debug("Draft processed", zap.String("status", string(status)), zap.Duration("elapsed", elapsed))
	return status, err
}

func (s *Service) convert(d connectors.PendingDraft) ([]byte, internal.DraftStatus, error) {
	msg, err := mail.Read(d.Raw)
	if err != nil {
		return nil, "", err
	}

	before, ok := msg.HTML()
	if !ok {
		return nil, internal.DraftUnchanged, nil
	}

	msg, err = s.conv.ConvertEmailBody(msg)
	if err != nil {
		return nil, "", err
	}
	after, ok := msg.HTML()
	if !ok || after == before {
		return nil, internal.DraftUnchanged, nil
	}

	raw, err := msg.Bytes()
	if err != nil {
		return nil, "", err
	}
	if err := s.store.ReplaceDraft(s.cfg.DraftsMailbox, d.Draft, raw); err != nil {
		return nil, "", err
	}
	return raw, internal.DraftConverted, nil
}
