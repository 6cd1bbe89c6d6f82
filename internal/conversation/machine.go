// ABOUTME: Conversation state machine correlating an image with a later 5-digit identifier
// ABOUTME: Decides prompt, wait, resolve, expire, or abort for every inbound event

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// identifierPattern is the full-string identifier format: exactly five ASCII digits.
var identifierPattern = regexp.MustCompile(`^[0-9]{5}$`)

// IsIdentifier reports whether text is a valid image identifier.
func IsIdentifier(text string) bool {
	return identifierPattern.MatchString(text)
}

// EventKind distinguishes the inbound events the machine understands.
type EventKind int

const (
	EventText EventKind = iota + 1
	EventImage
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventImage:
		return "image"
	default:
		return "unknown"
	}
}

// Event is one inbound chat event, already decoded from the platform's wire format.
type Event struct {
	ID         string // platform event id, used for logging only
	Kind       EventKind
	Origin     Origin
	ReplyToken string
	ImageRef   string // set for EventImage
	Text       string // set for EventText
}

// Outcome is what the machine decided for one event.
type Outcome int

const (
	OutcomeIgnored  Outcome = iota // unroutable, unknown kind, or text while idle
	OutcomePrompted                // image recorded, prompt sent
	OutcomeWaiting                 // non-matching text, budget left
	OutcomeResolved                // identifier matched, image stored
	OutcomeExpired                 // budget exhausted without a match
	OutcomeAborted                 // identifier matched, fetch or store failed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomePrompted:
		return "prompted"
	case OutcomeWaiting:
		return "waiting"
	case OutcomeResolved:
		return "resolved"
	case OutcomeExpired:
		return "expired"
	case OutcomeAborted:
		return "aborted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Fetcher retrieves the raw bytes of a previously received image.
type Fetcher interface {
	Fetch(ctx context.Context, imageRef string) ([]byte, error)
}

// Persister writes image bytes to durable storage under a name derived from
// the identifier.
type Persister interface {
	// Filename returns the stored file name for an identifier resolved at the given time.
	Filename(identifier string, at time.Time) string
	// Store persists data and returns where it ended up (a path or a remote object id).
	Store(ctx context.Context, data []byte, filename string) (location string, err error)
}

// Replier sends a plain-text reply addressed by a reply token.
type Replier interface {
	Reply(ctx context.Context, replyToken, text string) error
}

// Resolution describes one image that was fetched and stored successfully.
type Resolution struct {
	ID         string
	Key        Key
	Identifier string
	ImageRef   string
	Filename   string
	Location   string
	SizeBytes  int
	ResolvedAt time.Time
}

// Recorder keeps a durable record of resolutions. Optional.
type Recorder interface {
	RecordResolution(ctx context.Context, res *Resolution) error
}

// Observer receives one call per handled event. Optional.
type Observer interface {
	ObserveOutcome(kind EventKind, outcome Outcome, elapsed time.Duration)
}

// Messages holds the reply texts. Saved is a format string taking the file name.
type Messages struct {
	Prompt  string
	Saved   string
	Failed  string
	Expired string
}

// DefaultMessages returns the stock reply texts.
func DefaultMessages() Messages {
	return Messages{
		Prompt:  fmt.Sprintf("Image received. Please send its 5-digit ID (e.g. 00001) within the next %d messages.", MessageBudget),
		Saved:   "Image saved as %s. Thanks for uploading!",
		Failed:  "Saving the image failed. Please send the image again.",
		Expired: fmt.Sprintf("No 5-digit ID received within %d messages. The image was discarded, please send it again.", MessageBudget),
	}
}

// MachineConfig wires a Machine to its collaborators.
type MachineConfig struct {
	Store     *Store
	Fetcher   Fetcher
	Persister Persister
	Replier   Replier
	Recorder  Recorder
	Observer  Observer
	Messages  *Messages
	Clock     func() time.Time
	Logger    *slog.Logger
}

// Machine is the per-conversation state machine. Conversations are Idle when
// the Store has no pending image for their key and AwaitingID otherwise.
type Machine struct {
	store     *Store
	fetcher   Fetcher
	persister Persister
	replier   Replier
	recorder  Recorder
	observer  Observer
	messages  Messages
	now       func() time.Time
	logger    *slog.Logger
}

// NewMachine creates a Machine. Store, Fetcher, Persister and Replier are required.
func NewMachine(cfg MachineConfig) (*Machine, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.Persister == nil {
		return nil, errors.New("persister is required")
	}
	if cfg.Replier == nil {
		return nil, errors.New("replier is required")
	}

	m := &Machine{
		store:     cfg.Store,
		fetcher:   cfg.Fetcher,
		persister: cfg.Persister,
		replier:   cfg.Replier,
		recorder:  cfg.Recorder,
		observer:  cfg.Observer,
		messages:  DefaultMessages(),
		now:       cfg.Clock,
		logger:    cfg.Logger,
	}
	if cfg.Messages != nil {
		m.messages = *cfg.Messages
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "conversation")
	return m, nil
}

// Handle processes one event to completion, including any fetch, store and
// reply it triggers. Events for the same conversation are serialized.
func (m *Machine) Handle(ctx context.Context, ev Event) Outcome {
	start := time.Now()

	key, ok := Classify(ev.Origin)
	if !ok {
		m.logger.Debug("dropping unroutable event", "event_id", ev.ID, "kind", ev.Kind.String())
		m.observe(ev.Kind, OutcomeIgnored, start)
		return OutcomeIgnored
	}

	unlock := m.store.Lock(key)
	defer unlock()

	var outcome Outcome
	switch ev.Kind {
	case EventImage:
		outcome = m.handleImage(ctx, key, ev)
	case EventText:
		outcome = m.handleText(ctx, key, ev)
	default:
		outcome = OutcomeIgnored
	}

	m.logger.Debug("event handled",
		"event_id", ev.ID,
		"key", string(key),
		"kind", ev.Kind.String(),
		"outcome", outcome.String(),
	)
	m.observe(ev.Kind, outcome, start)
	return outcome
}

func (m *Machine) handleImage(ctx context.Context, key Key, ev Event) Outcome {
	if ev.ImageRef == "" {
		m.logger.Warn("image event without a content reference", "event_id", ev.ID, "key", string(key))
		return OutcomeIgnored
	}

	if prev, ok := m.store.Get(key); ok {
		m.logger.Info("replacing pending image", "key", string(key), "previous_ref", prev.ImageRef)
	}
	m.store.Put(key, ev.ImageRef)
	m.logger.Info("image pending identifier", "key", string(key), "image_ref", ev.ImageRef)

	m.reply(ctx, ev.ReplyToken, m.messages.Prompt)
	return OutcomePrompted
}

func (m *Machine) handleText(ctx context.Context, key Key, ev Event) Outcome {
	pending, ok := m.store.Get(key)
	if !ok {
		return OutcomeIgnored
	}

	// The budget shrinks on every text, a matching one included.
	remaining, err := m.store.Decrement(key)
	if err != nil {
		return OutcomeIgnored
	}

	text := strings.TrimSpace(ev.Text)
	if IsIdentifier(text) {
		return m.resolve(ctx, key, pending, text, ev.ReplyToken)
	}

	if remaining <= 0 {
		m.store.Remove(key)
		m.logger.Info("pending image expired", "key", string(key), "image_ref", pending.ImageRef)
		m.reply(ctx, ev.ReplyToken, m.messages.Expired)
		return OutcomeExpired
	}

	return OutcomeWaiting
}

// resolve fetches and stores the pending image. The pending record is
// removed whatever happens.
func (m *Machine) resolve(ctx context.Context, key Key, pending PendingImage, identifier, replyToken string) Outcome {
	defer m.store.Remove(key)

	res, err := m.fetchAndStore(ctx, key, pending, identifier)
	if err != nil {
		m.logger.Error("resolving image failed",
			"key", string(key),
			"identifier", identifier,
			"image_ref", pending.ImageRef,
			"error", err,
		)
		m.reply(ctx, replyToken, m.messages.Failed)
		return OutcomeAborted
	}

	m.logger.Info("image stored",
		"key", string(key),
		"identifier", identifier,
		"filename", res.Filename,
		"location", res.Location,
		"size", res.SizeBytes,
	)

	if m.recorder != nil {
		if err := m.recorder.RecordResolution(ctx, res); err != nil {
			m.logger.Error("recording resolution failed", "key", string(key), "filename", res.Filename, "error", err)
		}
	}

	m.reply(ctx, replyToken, fmt.Sprintf(m.messages.Saved, res.Filename))
	return OutcomeResolved
}

// fetchAndStore turns collaborator panics into errors so a misbehaving
// backend can never leave a stale pending record.
func (m *Machine) fetchAndStore(ctx context.Context, key Key, pending PendingImage, identifier string) (res *Resolution, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("resolution panicked: %v", r)
		}
	}()

	data, err := m.fetcher.Fetch(ctx, pending.ImageRef)
	if err != nil {
		return nil, fmt.Errorf("fetching image: %w", err)
	}

	resolvedAt := m.now()
	filename := m.persister.Filename(identifier, resolvedAt)
	location, err := m.persister.Store(ctx, data, filename)
	if err != nil {
		return nil, fmt.Errorf("storing image: %w", err)
	}

	return &Resolution{
		ID:         uuid.New().String(),
		Key:        key,
		Identifier: identifier,
		ImageRef:   pending.ImageRef,
		Filename:   filename,
		Location:   location,
		SizeBytes:  len(data),
		ResolvedAt: resolvedAt,
	}, nil
}

func (m *Machine) reply(ctx context.Context, replyToken, text string) {
	if replyToken == "" {
		m.logger.Warn("no reply token, dropping reply", "text", text)
		return
	}
	if err := m.replier.Reply(ctx, replyToken, text); err != nil {
		m.logger.Error("sending reply failed", "error", err)
	}
}

func (m *Machine) observe(kind EventKind, outcome Outcome, start time.Time) {
	if m.observer != nil {
		m.observer.ObserveOutcome(kind, outcome, time.Since(start))
	}
}
