package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"LabelPrinter/app/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultConfirmationTTL is how long a run waits for a duplicate decision
const DefaultConfirmationTTL = 10 * time.Minute

// ErrDuplicateDeclined is recorded on runs the operator chose not to reprint
var ErrDuplicateDeclined = errors.New("duplicate print declined")

// PrinterServiceConfig wires the collaborators of the print orchestrator
type PrinterServiceConfig struct {
	Ledger     *HistoryLedger
	Renderer   DocumentRenderer
	Viewer     DocumentViewer
	Encoder    *EscPosEncoder
	Transports *TransportSet

	// DefaultTarget is used when a request names no target
	DefaultTarget models.PrintTarget
	// TargetDefaults fills missing destination fields per transport kind
	TargetDefaults func(kind models.TransportKind) models.PrintTarget

	ConfirmationTTL time.Duration
	Logger          *zap.Logger
}

// PrinterService is the print orchestrator. It validates a request, checks
// the history for an earlier print of the same order, renders or encodes
// every copy, dispatches them in box order and records the job once all
// copies went out.
type PrinterService struct {
	ledger         *HistoryLedger
	renderer       DocumentRenderer
	viewer         DocumentViewer
	encoder        *EscPosEncoder
	transports     *TransportSet
	defaultTarget  models.PrintTarget
	targetDefaults func(kind models.TransportKind) models.PrintTarget
	ttl            time.Duration
	logger         *zap.Logger
	now            func() time.Time

	// dispatchMu lets one run render and dispatch at a time
	dispatchMu sync.Mutex

	mu        sync.Mutex
	runs      map[string]*printRun
	observers []func(models.PrintRun)
}

type printRun struct {
	snap  models.PrintRun
	label models.Label
}

// NewPrinterService creates the orchestrator
func NewPrinterService(cfg PrinterServiceConfig) *PrinterService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	viewer := cfg.Viewer
	if viewer == nil {
		viewer = NoopViewer{}
	}
	transports := cfg.Transports
	if transports == nil {
		transports = NewTransportSet()
	}
	ttl := cfg.ConfirmationTTL
	if ttl <= 0 {
		ttl = DefaultConfirmationTTL
	}
	defaultTarget := cfg.DefaultTarget
	if defaultTarget.Kind == "" {
		defaultTarget = models.PrintTarget{Kind: models.TransportDocument}
	}
	targetDefaults := cfg.TargetDefaults
	if targetDefaults == nil {
		targetDefaults = func(kind models.TransportKind) models.PrintTarget {
			return models.PrintTarget{Kind: kind}
		}
	}

	return &PrinterService{
		ledger:         cfg.Ledger,
		renderer:       cfg.Renderer,
		viewer:         viewer,
		encoder:        cfg.Encoder,
		transports:     transports,
		defaultTarget:  defaultTarget,
		targetDefaults: targetDefaults,
		ttl:            ttl,
		logger:         logger,
		now:            time.Now,
		runs:           make(map[string]*printRun),
	}
}

// OnUpdate registers fn to receive a snapshot on every state transition
func (s *PrinterService) OnUpdate(fn func(models.PrintRun)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Submit starts a print run. A duplicate order parks the run in
// AwaitingConfirmation and returns it with a nil error; ConfirmDuplicate
// resumes it. Otherwise the run is carried to Committed or Aborted before
// Submit returns, and an aborted run comes back with its cause.
func (s *PrinterService) Submit(ctx context.Context, req models.PrintRequest) (models.PrintRun, error) {
	s.pruneRuns()

	run := s.newRun(req)

	label, err := models.NewLabel(req.OrderID, req.Customer, req.BoxCount)
	if err != nil {
		return s.abort(run, err), err
	}
	run.label = label

	target, err := s.resolveTarget(req.Target)
	if err != nil {
		return s.abort(run, err), err
	}
	s.update(run, func(r *models.PrintRun) {
		r.OrderID = label.OrderID()
		r.Customer = label.Customer()
		r.Target = target
		r.State = models.RunDuplicateCheck
	})

	// The check and the commit share dispatchMu so two submissions of the
	// same order cannot both pass the check
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	if prior := s.ledger.PrintCount(label.OrderID()); prior > 0 {
		snap := s.update(run, func(r *models.PrintRun) {
			r.Duplicate = true
			r.PriorPrints = prior
			r.State = models.RunAwaitingConfirmation
		})
		s.logger.Info("order already printed, awaiting confirmation",
			zap.String("run_id", snap.ID),
			zap.String("order_id", label.OrderID()),
			zap.Int("prior_prints", prior))
		return snap, nil
	}

	return s.executeLocked(ctx, run)
}

// ConfirmDuplicate answers the duplicate question for a parked run.
// Declining aborts the run without side effects.
func (s *PrinterService) ConfirmDuplicate(ctx context.Context, runID string, proceed bool) (models.PrintRun, error) {
	s.pruneRuns()

	s.mu.Lock()
	run, ok := s.runs[runID]
	if !ok {
		s.mu.Unlock()
		return models.PrintRun{}, fmt.Errorf("%w: %s", models.ErrRunNotFound, runID)
	}
	if run.snap.State != models.RunAwaitingConfirmation {
		snap := run.snap
		s.mu.Unlock()
		return snap, fmt.Errorf("%w: run %s is %s", models.ErrNotAwaitingConfirmation, runID, snap.State)
	}
	// Claim the run so a second confirmation cannot start it again
	run.snap.State = models.RunRendering
	run.snap.UpdatedAt = s.now()
	s.mu.Unlock()

	if !proceed {
		s.logger.Info("duplicate print declined",
			zap.String("run_id", runID),
			zap.String("order_id", run.label.OrderID()))
		return s.abort(run, ErrDuplicateDeclined), nil
	}

	s.logger.Info("duplicate print confirmed",
		zap.String("run_id", runID),
		zap.String("order_id", run.label.OrderID()))

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	return s.executeLocked(ctx, run)
}

// Run returns the latest snapshot of a run
func (s *PrinterService) Run(runID string) (models.PrintRun, error) {
	s.pruneRuns()

	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return models.PrintRun{}, fmt.Errorf("%w: %s", models.ErrRunNotFound, runID)
	}
	return run.snap, nil
}

// QueryHistory returns every history entry in append order
func (s *PrinterService) QueryHistory() []models.HistoryEntry {
	return s.ledger.Load()
}

// QueryDuplicates maps order ids printed more than once to their count
func (s *PrinterService) QueryDuplicates() map[string]int {
	return s.ledger.Duplicates()
}

// HistoryView lists history newest first with duplicate flags
func (s *PrinterService) HistoryView() []models.HistoryRow {
	return s.ledger.View()
}

// Preview validates the label fields and returns the text of each copy
func (s *PrinterService) Preview(orderID, customer string, boxCount int) ([]models.CopyPreview, error) {
	label, err := models.NewLabel(orderID, customer, boxCount)
	if err != nil {
		return nil, err
	}
	return label.Preview(), nil
}

// executeLocked renders, dispatches and commits a run. The caller holds
// dispatchMu.
func (s *PrinterService) executeLocked(ctx context.Context, run *printRun) (models.PrintRun, error) {
	s.update(run, func(r *models.PrintRun) { r.State = models.RunRendering })

	var err error
	if run.snap.Target.Kind.IsRaw() {
		err = s.printRaw(ctx, run)
	} else {
		err = s.printDocument(ctx, run)
	}
	if err != nil {
		return s.abort(run, err), err
	}

	entry := s.ledger.Record(run.label)
	snap := s.update(run, func(r *models.PrintRun) { r.State = models.RunCommitted })
	s.logger.Info("print run committed",
		zap.String("run_id", snap.ID),
		zap.String("order_id", entry.OrderID),
		zap.Int("box_qty", entry.BoxQty),
		zap.String("target", snap.Target.Kind.String()))
	return snap, nil
}

func (s *PrinterService) printDocument(ctx context.Context, run *printRun) error {
	if s.renderer == nil {
		return fmt.Errorf("%w: %s", models.ErrTransportUnavailable, models.TransportDocument)
	}

	path, err := s.renderer.Render(ctx, run.label)
	if err != nil {
		return err
	}
	s.update(run, func(r *models.PrintRun) {
		r.ArtifactPath = path
		r.CopiesSent = run.label.BoxCount()
		r.State = models.RunDispatching
	})

	if err := s.viewer.Open(path); err != nil {
		s.logger.Warn("could not open label document", zap.String("path", path), zap.Error(err))
	}
	return nil
}

func (s *PrinterService) printRaw(ctx context.Context, run *printRun) error {
	target := run.snap.Target
	transport, err := s.transports.Get(target.Kind)
	if err != nil {
		return &models.TransportError{
			Kind:        target.Kind,
			Destination: target.Destination(),
			OrderID:     run.label.OrderID(),
			Reason:      "transport not configured",
			Cause:       err,
		}
	}
	if s.encoder == nil {
		return fmt.Errorf("no ESC/POS encoder configured")
	}

	copies := run.label.Copies()
	payloads := s.encoder.EncodeJob(run.label)
	s.update(run, func(r *models.PrintRun) { r.State = models.RunDispatching })

	for i, c := range copies {
		// Cancellation is honored between copies only; a copy in flight
		// is never cut short.
		if err := ctx.Err(); err != nil {
			s.update(run, func(r *models.PrintRun) { r.FailedCopy = c.Index })
			return fmt.Errorf("print cancelled before copy %d/%d: %w", c.Index, c.Total, err)
		}

		if err := transport.Send(ctx, target, payloads[i]); err != nil {
			var terr *models.TransportError
			if !errors.As(err, &terr) {
				terr = &models.TransportError{Kind: target.Kind, Destination: target.Destination(), Reason: err.Error(), Cause: err}
			}
			terr.OrderID = run.label.OrderID()
			terr.CopyIndex = c.Index
			terr.CopyTotal = c.Total
			s.update(run, func(r *models.PrintRun) { r.FailedCopy = c.Index })
			return terr
		}

		s.update(run, func(r *models.PrintRun) { r.CopiesSent = c.Index })
	}
	return nil
}

func (s *PrinterService) resolveTarget(requested models.PrintTarget) (models.PrintTarget, error) {
	var target models.PrintTarget
	if requested.Kind == "" {
		target = s.defaultTarget
	} else {
		kind, err := models.ParseTransportKind(string(requested.Kind))
		if err != nil {
			return models.PrintTarget{}, &models.ValidationError{Field: "target.kind", Message: err.Error()}
		}
		requested.Kind = kind
		target = requested.WithDefaults(s.targetDefaults(kind))
	}
	if err := target.Validate(); err != nil {
		return models.PrintTarget{}, err
	}
	return target, nil
}

func (s *PrinterService) newRun(req models.PrintRequest) *printRun {
	now := s.now()
	run := &printRun{snap: models.PrintRun{
		ID:        uuid.NewString(),
		OrderID:   req.OrderID,
		Customer:  req.Customer,
		BoxCount:  req.BoxCount,
		Target:    req.Target,
		State:     models.RunReceived,
		CreatedAt: now,
		UpdatedAt: now,
	}}

	s.mu.Lock()
	s.runs[run.snap.ID] = run
	s.mu.Unlock()
	return run
}

// update applies fn to the run snapshot and notifies observers
func (s *PrinterService) update(run *printRun, fn func(r *models.PrintRun)) models.PrintRun {
	s.mu.Lock()
	fn(&run.snap)
	run.snap.UpdatedAt = s.now()
	snap := run.snap
	observers := append([]func(models.PrintRun){}, s.observers...)
	s.mu.Unlock()

	for _, notify := range observers {
		notify(snap)
	}
	return snap
}

func (s *PrinterService) abort(run *printRun, cause error) models.PrintRun {
	snap := s.update(run, func(r *models.PrintRun) {
		r.State = models.RunAborted
		r.Error = cause.Error()
	})
	if !errors.Is(cause, ErrDuplicateDeclined) {
		s.logger.Warn("print run aborted",
			zap.String("run_id", snap.ID),
			zap.String("order_id", snap.OrderID),
			zap.Error(cause))
	}
	return snap
}

// pruneRuns forgets finished runs and expires unanswered confirmations.
// Submit, Run and ConfirmDuplicate all call it so an idle server still
// expires parked runs on the next lookup.
func (s *PrinterService) pruneRuns() {
	cutoff := s.now().Add(-s.ttl)

	var expired []*printRun
	s.mu.Lock()
	for id, run := range s.runs {
		if run.snap.UpdatedAt.After(cutoff) {
			continue
		}
		switch {
		case run.snap.State.Terminal():
			delete(s.runs, id)
		case run.snap.State == models.RunAwaitingConfirmation:
			run.snap.State = models.RunRendering // claimed, see ConfirmDuplicate
			expired = append(expired, run)
		}
	}
	s.mu.Unlock()

	for _, run := range expired {
		s.abort(run, errors.New("duplicate confirmation expired"))
	}
}
