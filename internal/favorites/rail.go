package favorites

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/catalog"
	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/clientstate"
)

const ToastLifetime = 1400 * time.Millisecond

// ErrClosed is returned by operations on a closed rail.
var ErrClosed = errors.New("favorites rail closed")

// FetchRequest asks for favorite products not in Exclude.
type FetchRequest struct {
	Limit   int
	Random  bool
	Exclude []int64
}

type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) ([]catalog.Product, error)
}

// CartStore is the client store the rail adds to and watches.
type CartStore interface {
	State() clientstate.State
	Dispatch(a clientstate.Action) clientstate.State
	Subscribe(fn func(clientstate.State)) func()
}

type Options struct {
	// WindowSize defaults to DefaultWindowSize.
	WindowSize int
	// InitialLimit is the size of the first batch; default 3x the window.
	InitialLimit int
	// SupplementLimit is the size of a refill batch; default 2x the window.
	SupplementLimit int
	Log             *zap.Logger
	Rand            Rand
	// AfterFunc schedules f after d and returns a stop function;
	// time.AfterFunc by default.
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
}

// Rail owns the rail state. Fetches run without the lock held.
type Rail struct {
	fetcher Fetcher
	cart    CartStore
	size    int
	initial int
	extra   int
	log     *zap.Logger
	after   func(d time.Duration, f func()) func() bool

	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()

	mu        sync.Mutex
	state     State
	rnd       Rand
	cartIDs   map[int64]struct{}
	filling   bool
	closed    bool
	toastGen  int
	toastStop func() bool
}

func New(fetcher Fetcher, cart CartStore, opts Options) *Rail {
	if opts.WindowSize < 1 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.InitialLimit < opts.WindowSize {
		opts.InitialLimit = opts.WindowSize * 3
	}
	if opts.SupplementLimit < 1 {
		opts.SupplementLimit = opts.WindowSize * 2
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) func() bool { return time.AfterFunc(d, f).Stop }
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Rail{
		fetcher: fetcher,
		cart:    cart,
		size:    opts.WindowSize,
		initial: opts.InitialLimit,
		extra:   opts.SupplementLimit,
		log:     opts.Log.Named("favorites"),
		after:   opts.AfterFunc,
		ctx:     ctx,
		cancel:  cancel,
		state:   State{Phase: PhaseLoading, Window: []catalog.Product{}, Pool: []catalog.Product{}},
		rnd:     opts.Rand,
		cartIDs: cart.State().CartIDs(),
	}
	r.unsub = cart.Subscribe(r.onCartChange)
	return r
}

// State returns a copy of the current state.
func (r *Rail) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state
	s.Window = append([]catalog.Product{}, s.Window...)
	s.Pool = append([]catalog.Product{}, s.Pool...)
	if s.Toast != nil {
		t := *s.Toast
		s.Toast = &t
	}
	return s
}

// Initialize loads the first batch and fills the window. On failure the
// rail moves to PhaseError with an empty window and the error is returned.
func (r *Rail) Initialize(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.state = State{Phase: PhaseLoading, Window: []catalog.Product{}, Pool: []catalog.Product{}}
	exclude := keys(r.cartIDs)
	r.mu.Unlock()

	fetchCtx, done := r.bind(ctx)
	batch, err := r.fetcher.Fetch(fetchCtx, FetchRequest{Limit: r.initial, Exclude: exclude})
	done()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		r.state = State{Phase: PhaseError, Window: []catalog.Product{}, Pool: []catalog.Product{}, Err: err}
		r.mu.Unlock()
		r.log.Warn("initial favorites fetch failed", zap.Error(err))
		return errors.Wrap(err, "load favorites")
	}
	r.state = Seed(batch, r.cartView(), r.size)
	short := len(r.state.Window) < r.size
	r.mu.Unlock()

	if short {
		r.EnsureFill(ctx)
	}
	return nil
}

// EnsureFill tops the window up from the pool and, if still short, runs at
// most one supplemental random fetch. Fetch failures are logged only.
func (r *Rail) EnsureFill(ctx context.Context) {
	r.mu.Lock()
	if r.closed || r.state.Phase != PhaseReady {
		r.mu.Unlock()
		return
	}
	cart := r.cartView()
	r.state = Fill(Prune(r.state, cart), r.size)
	if len(r.state.Window) >= r.size || r.filling {
		r.mu.Unlock()
		return
	}
	r.filling = true
	exclude := append(r.state.ids(), keys(r.cartIDs)...)
	r.mu.Unlock()

	fetchCtx, done := r.bind(ctx)
	batch, err := r.fetcher.Fetch(fetchCtx, FetchRequest{Limit: r.extra, Random: true, Exclude: exclude})
	done()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.filling = false
	if r.closed {
		return
	}
	if err != nil {
		r.log.Warn("supplemental favorites fetch failed", zap.Error(err))
		return
	}
	cart = r.cartView()
	r.state = Fill(Merge(Prune(r.state, cart), batch, cart, r.rnd), r.size)
}

// AddAndReplace adds p to the cart, shows a toast for it and swaps its
// window slot for a pool candidate. A product that is not visible is only
// added to the cart.
func (r *Rail) AddAndReplace(ctx context.Context, p catalog.Product, requestedIndex int) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	next, found := Replace(r.state, p.ID, requestedIndex, r.rnd)
	r.state = next
	shrunk := found && len(next.Window) < r.size
	r.showToastLocked(p.Name)
	r.mu.Unlock()

	r.cart.Dispatch(clientstate.AddItem{Product: p, Quantity: 1})
	if shrunk {
		r.EnsureFill(ctx)
	}
}

func (r *Rail) showToastLocked(name string) {
	if r.toastStop != nil {
		r.toastStop()
	}
	r.toastGen++
	gen := r.toastGen
	r.state.Toast = &Toast{Name: name}
	r.toastStop = r.after(ToastLifetime, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.toastGen == gen {
			r.state.Toast = nil
			r.toastStop = nil
		}
	})
}

// onCartChange prunes and refills when the set of cart ids changed.
func (r *Rail) onCartChange(s clientstate.State) {
	ids := s.CartIDs()
	r.mu.Lock()
	if r.closed || sameIDs(ids, r.cartIDs) {
		r.mu.Unlock()
		return
	}
	r.cartIDs = ids
	r.state = Prune(r.state, r.cartView())
	r.mu.Unlock()

	r.EnsureFill(r.ctx)
}

// Close cancels in-flight fetches and stops reacting to the cart.
func (r *Rail) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.toastStop != nil {
		r.toastStop()
		r.toastStop = nil
	}
	r.mu.Unlock()

	r.cancel()
	r.unsub()
}

// bind ties ctx to the rail's lifetime.
func (r *Rail) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(r.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (r *Rail) cartView() Cart {
	cats := map[string]struct{}{}
	for _, it := range r.cart.State().Items {
		if _, ok := r.cartIDs[it.Product.ID]; !ok {
			continue
		}
		for _, c := range it.Product.Categories() {
			cats[c] = struct{}{}
		}
	}
	return Cart{IDs: r.cartIDs, Categories: cats}
}

func keys(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

func sameIDs(a, b map[int64]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}
