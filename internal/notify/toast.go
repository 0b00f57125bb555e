package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/ace-billing/pkg/logging"
)

// Variant is the visual style of a toast.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Toast is a non-blocking user notification.
type Toast struct {
	ID          string    `json:"id"`
	Variant     Variant   `json:"variant"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description"`
	Redirect    string    `json:"redirect,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Toaster surfaces store failures to the operator.
type Toaster interface {
	Toast(ctx context.Context, t Toast)
}

// Error is shorthand for a destructive toast.
func Error(ctx context.Context, toaster Toaster, description string) {
	if toaster == nil {
		return
	}
	toaster.Toast(ctx, Toast{Variant: VariantDestructive, Description: description})
}

// Info is shorthand for a default toast.
func Info(ctx context.Context, toaster Toaster, description string) {
	if toaster == nil {
		return
	}
	toaster.Toast(ctx, Toast{Variant: VariantDefault, Description: description})
}

const defaultFeedSize = 50

// Feed keeps the most recent toasts and fans them out to subscribers.
type Feed struct {
	logger *logging.Logger
	size   int

	mu     sync.Mutex
	recent []Toast
	subs   map[int]chan Toast
	nextID int
}

// NewFeed creates a toast feed retaining up to size toasts.
func NewFeed(size int, logger *logging.Logger) *Feed {
	if size <= 0 {
		size = defaultFeedSize
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Feed{
		logger: logger.Component("toasts"),
		size:   size,
		subs:   make(map[int]chan Toast),
	}
}

// Toast records t and delivers it to subscribers. A subscriber with a full
// buffer does not receive it.
func (f *Feed) Toast(_ context.Context, t Toast) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Variant == "" {
		t.Variant = VariantDefault
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	f.mu.Lock()
	f.recent = append(f.recent, t)
	if len(f.recent) > f.size {
		f.recent = f.recent[len(f.recent)-f.size:]
	}
	for _, ch := range f.subs {
		select {
		case ch <- t:
		default:
		}
	}
	f.mu.Unlock()

	if t.Variant == VariantDestructive {
		f.logger.Warn("toast", "description", t.Description)
	} else {
		f.logger.Info("toast", "description", t.Description)
	}
}

// Recent returns a copy of the retained toasts, oldest first.
func (f *Feed) Recent() []Toast {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Toast, len(f.recent))
	copy(out, f.recent)
	return out
}

// Subscribe returns a channel of new toasts and a cancel func that closes it.
func (f *Feed) Subscribe(buffer int) (<-chan Toast, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Toast, buffer)
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Navigate tells subscribed views to move to route. It satisfies
// session.Navigator for the dashboard, where the server cannot redirect a
// browser outside a request.
func (f *Feed) Navigate(route string) {
	f.Toast(context.Background(), Toast{
		Variant:     VariantDestructive,
		Title:       "Session expired",
		Description: "Please sign in again.",
		Redirect:    route,
	})
}
