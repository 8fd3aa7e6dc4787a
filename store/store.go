/*
Package store provides an immutable state container with subscriptions to
changes in the stored data. It holds a single state value for the application;
all changes flow through Perform(), which applies registered Modifiers to
produce a new state and then notifies subscribers.

Immutability

When we say immutable, we mean that everything gets copied, as Go does not
have immutable objects or types other than strings. Every update to a
reference type (map, slice, pointer target) inside a Modifier must make a copy
of the data before changing it, never a mutation. CopyAppendSlice() is
provided as a convenience for the common slice case.

Guarantees

Perform() is strictly serialized: two Actions are never applied concurrently.
Subscribers are invoked synchronously, in subscription order, before Perform()
returns. A Perform() issued from inside a Modifier, Middleware or subscriber
callback on the same goroutine returns ErrReentrant instead of deadlocking.

Usage structure

The store is best used in a modular layout:

  └── state
    ├── state.go     - constructor wiring a store.Store for the application
    ├── actions      - the Actions applied to the store
    ├── data         - the definition of the state object
    ├── middleware   - Middleware acting on changes to the data (optional)
    └── modifiers    - the Modifiers the store uses to compute new state
*/
package store

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// Any is used to indicate to Store.Subscribe() that you want updates for
// any change to the store, not just a single field.
const Any = "any"

// ErrReentrant is returned by Perform() when it is called from within a
// Modifier, Middleware or subscriber callback of the same store on the same
// goroutine. Allowing that call to proceed would deadlock on the commit lock.
var ErrReentrant = errors.New("store: Perform() called reentrantly from a modifier, middleware or subscriber")

var publicRE = regexp.MustCompile(`^[A-Z].*`)

// Signal is sent to subscribers when a field in the stored data changes.
type Signal struct {
	// Version is the version of the field that changed. If subscribed to Any,
	// it is the store's version, not a specific field's.
	Version uint64

	// Fields are the field names that were updated. This is a single name
	// unless the subscription was for Any.
	Fields []string

	// State is the new State object.
	State State
}

// FieldChanged loops over Fields to determine if "f" is present.
// len(s.Fields) is always small, so a linear search is optimal.
// Only useful if you are subscribed to Any, as otherwise it is a single entry.
func (s Signal) FieldChanged(f string) bool {
	for _, field := range s.Fields {
		if field == f {
			return true
		}
	}
	return false
}

// Action represents an action to take on the Store.
type Action struct {
	// Type should be an enumerated constant representing the type of Action.
	Type int

	// Update holds the value the Modifiers need to compute the new state.
	Update interface{}
}

// Modifier takes the existing state and an Action to apply to the state. The
// result is the new state. A Modifier must not mutate "state": if it changes
// a reference type contained in state, it must copy that reference first and
// manipulate the copy, storing it in the new state object.
type Modifier func(state interface{}, action Action) interface{}

// Modifiers provides the internals the ability to run a chain of Modifier.
type Modifiers struct {
	updater Modifier
}

// NewModifiers creates a new Modifiers with the Modifier(s) provided.
func NewModifiers(updaters ...Modifier) Modifiers {
	return Modifiers{updater: combineModifier(updaters...)}
}

// run calls the updater on state/action.
func (m Modifiers) run(state interface{}, action Action) interface{} {
	return m.updater(state, action)
}

// State holds the state data.
type State struct {
	// Version is the version of the state this represents. Each change
	// updates this version number.
	Version uint64

	// FieldVersions holds the version each field is at. This allows tracking
	// of individual field updates.
	FieldVersions map[string]uint64

	// Data is the state data. The type is some kind of struct.
	Data interface{}
}

// IsZero indicates that the State isn't set.
func (s State) IsZero() bool {
	return s.Data == nil
}

// GetState returns the current State of the Store.
type GetState func() State

// MWArgs are the arguments to a Middleware implementor.
type MWArgs struct {
	// Action is the Action that is being performed.
	Action Action

	// NewData is the proposed new State.Data field in the Store. This can be
	// modified by the Middleware and returned as the changedData return value.
	NewData interface{}

	// GetState is a function that returns the current State of the Store.
	GetState GetState

	// Committed is only used if the Middleware spins off a goroutine. In that
	// case the committed State is sent via this channel, allowing Middleware
	// that acts on the final state (logging, side effects) to work. If the
	// commit was vetoed by another Middleware, State.IsZero() will be true.
	Committed chan State

	// WG must have .Done() called by all Middleware once it has finished. If
	// using Committed, do not call WG.Done() until the goroutine completes its
	// synchronous obligations.
	WG *sync.WaitGroup
}

// Middleware is called before the state is committed. It may return a changed
// version of the proposed data (or nil for unchanged), an indicator to stop
// processing further Middleware while still committing, and an error to veto
// the commit entirely. See MWArgs.Committed for observing the final state.
type Middleware func(args *MWArgs) (changedData interface{}, stop bool, err error)

// combineModifier takes multiple Modifiers and combines them into a single
// instance.
func combineModifier(updaters ...Modifier) Modifier {
	return func(state interface{}, action Action) interface{} {
		if err := validateState(state); err != nil {
			panic(err)
		}

		for _, u := range updaters {
			state = u(state, action)
		}
		return state
	}
}

// validateState validates that state is actually a struct.
func validateState(state interface{}) error {
	if reflect.TypeOf(state).Kind() != reflect.Struct {
		return fmt.Errorf("a state may only be of type struct, which does not include *struct, was: %s", reflect.TypeOf(state).Kind())
	}
	return nil
}

// subscriber is a single registered callback for a field (or Any).
type subscriber struct {
	id    int
	field string
	fn    func(Signal)
}

type stateChange struct {
	old, new         interface{}
	newVersion       uint64
	newFieldVersions map[string]uint64
	changed          []string
}

// CancelFunc is used to cancel a subscription.
type CancelFunc func()

func cancelFunc(s *Store, field string, id int) CancelFunc {
	return func() {
		s.smu.Lock()
		defer s.smu.Unlock()

		v := s.subscribers[field]
		if len(v) == 1 && v[0].id == id {
			delete(s.subscribers, field)
			return
		}

		l := make([]subscriber, 0, len(v))
		for _, sub := range v {
			if sub.id == id {
				continue
			}
			l = append(l, sub)
		}
		s.subscribers[field] = l
	}
}

// Store provides access to the single data store for the application.
// The Store is thread-safe.
type Store struct {
	// mod holds all the state modifiers.
	mod Modifiers

	// middle holds all the Middleware we must apply.
	middle []Middleware

	// pmu prevents concurrent Perform() calls.
	pmu sync.Mutex

	// performer is the id of the goroutine currently inside Perform(), or 0.
	// Used to detect reentrant Perform() calls that would deadlock on pmu.
	performer int64

	// state is the current state of the Store. Its value is an interface{},
	// but it is guaranteed to be a struct.
	state atomic.Value

	// smu protects subscribers and sid.
	smu sync.RWMutex

	// subscribers holds the map of subscribers for different fields.
	subscribers map[string][]subscriber

	// sid is an id for a subscriber, also used for notification ordering.
	sid int
}

// New is the constructor for Store. initialState should be the struct used
// for the application's state. All Modifiers in mod must return the same
// struct type that initialState contains or you will receive a panic.
func New(initialState interface{}, mod Modifiers, middle []Middleware) (*Store, error) {
	if err := validateState(initialState); err != nil {
		return nil, err
	}

	if mod.updater == nil {
		return nil, fmt.Errorf("mod must contain at least one Modifier")
	}

	fieldVersions := map[string]uint64{}
	for _, f := range fieldList(initialState) {
		fieldVersions[f] = 0
	}

	s := &Store{mod: mod, subscribers: map[string][]subscriber{}, middle: middle}
	s.state.Store(State{Version: 0, FieldVersions: fieldVersions, Data: initialState})

	return s, nil
}

// Perform applies an Action to the Store's state. The new state is committed
// and all affected subscribers are notified before Perform returns.
func (s *Store) Perform(a Action) error {
	if atomic.LoadInt64(&s.performer) == gid() {
		return ErrReentrant
	}

	s.pmu.Lock()
	atomic.StoreInt64(&s.performer, gid())
	defer func() {
		atomic.StoreInt64(&s.performer, 0)
		s.pmu.Unlock()
	}()

	state := s.state.Load().(State)
	n := s.mod.run(state.Data, a)

	middleWg := &sync.WaitGroup{}
	middleWg.Add(len(s.middle))
	n, commitChans, err := s.processMiddleware(a, n, middleWg)
	if err != nil {
		for _, ch := range commitChans {
			close(ch)
		}
		return err
	}

	s.perform(state, n, commitChans)

	done := make(chan struct{})
	timer := time.NewTimer(5 * time.Second)
	go func() {
		middleWg.Wait()
		close(done)
	}()

	// This helps users diagnose misbehaving middleware.
	for {
		select {
		case <-done:
			timer.Stop()
		case <-timer.C:
			glog.Infof("middleware is taking longer than 5 seconds, did you call wg.Done()?")
			continue
		}
		break
	}

	return nil
}

func (s *Store) processMiddleware(a Action, newData interface{}, wg *sync.WaitGroup) (data interface{}, commitChans []chan State, err error) {
	commitChans = make([]chan State, len(s.middle))
	for i := 0; i < len(commitChans); i++ {
		commitChans[i] = make(chan State, 1)
	}

	for i, m := range s.middle {
		cd, stop, err := m(&MWArgs{Action: a, NewData: newData, GetState: s.State, Committed: commitChans[i], WG: wg})
		if err != nil {
			return nil, commitChans, err
		}

		if cd != nil {
			newData = cd
		}

		if stop {
			break
		}
	}
	return newData, commitChans, nil
}

func (s *Store) perform(state State, n interface{}, commitChans []chan State) {
	changed := fieldsChanged(state.Data, n)

	// No field changed, so the state reference stays as-is. Middleware
	// observing via Committed still sees the Action against the current state.
	if len(changed) == 0 {
		for _, ch := range commitChans {
			ch <- state
		}
		return
	}

	// Copy the field versions so they are safe between loaded states.
	fieldVersions := make(map[string]uint64, len(state.FieldVersions))
	for k, v := range state.FieldVersions {
		fieldVersions[k] = v
	}

	for _, k := range changed {
		fieldVersions[k] = fieldVersions[k] + 1
	}
	sort.Strings(changed)

	sc := stateChange{
		old:              state.Data,
		new:              n,
		newVersion:       state.Version + 1,
		newFieldVersions: fieldVersions,
		changed:          changed,
	}

	written := State{Data: sc.new, Version: sc.newVersion, FieldVersions: sc.newFieldVersions}
	s.state.Store(written)

	s.cast(sc, written)

	for _, ch := range commitChans {
		ch <- written
	}
}

// Subscribe registers fn to be called when a field is updated. fn is invoked
// synchronously during Perform(), in subscription order. If field is the Any
// enumerator, any field change in the state data triggers fn. The returned
// CancelFunc cancels the subscription; cancelling from within a notification
// does not affect the in-progress notification pass.
func (s *Store) Subscribe(field string, fn func(Signal)) (CancelFunc, error) {
	if fn == nil {
		return nil, fmt.Errorf("cannot subscribe with a nil callback")
	}

	if field != Any && !publicRE.MatchString(field) {
		return nil, fmt.Errorf("cannot subscribe to a field that is not public: %s", field)
	}

	if field != Any && !fieldExist(field, s.State().Data) {
		return nil, fmt.Errorf("cannot subscribe to non-existing field: %s", field)
	}

	s.smu.Lock()
	defer s.smu.Unlock()
	defer func() { s.sid++ }()

	s.subscribers[field] = append(s.subscribers[field], subscriber{id: s.sid, field: field, fn: fn})
	return cancelFunc(s, field, s.sid), nil
}

// State returns the current stored state.
func (s *Store) State() State {
	return s.state.Load().(State)
}

// cast notifies subscribers of the change. The subscriber list is snapshotted
// before any callback runs, so a CancelFunc invoked inside a callback cannot
// disturb the pass, and callbacks never run under smu.
func (s *Store) cast(sc stateChange, state State) {
	type delivery struct {
		sub subscriber
		sig Signal
	}

	s.smu.RLock()
	var deliveries []delivery
	for _, field := range sc.changed {
		for _, sub := range s.subscribers[field] {
			deliveries = append(deliveries, delivery{
				sub: sub,
				sig: Signal{Version: sc.newFieldVersions[field], State: state, Fields: []string{field}},
			})
		}
	}
	for _, sub := range s.subscribers[Any] {
		deliveries = append(deliveries, delivery{
			sub: sub,
			sig: Signal{Version: sc.newVersion, State: state, Fields: sc.changed},
		})
	}
	s.smu.RUnlock()

	sort.SliceStable(deliveries, func(i, j int) bool { return deliveries[i].sub.id < deliveries[j].sub.id })

	for _, d := range deliveries {
		d.sub.fn(d.sig)
	}
}

// gid returns the id of the calling goroutine. The runtime does not expose
// this, but the header line of a stack trace does.
func gid() int64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(string(b[:i]), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// fieldExist returns true if the field exists in "i". This will panic if "i"
// is not a struct.
func fieldExist(f string, i interface{}) bool {
	return reflect.ValueOf(i).FieldByName(f).IsValid()
}

// fieldsChanged detects which fields changed between a and z and reports the
// field names. It is assumed a and z are the same type, if not this will not
// work correctly.
func fieldsChanged(a, z interface{}) []string {
	r := []string{}

	av := reflect.ValueOf(a)
	zv := reflect.ValueOf(z)

	for i := 0; i < av.NumField(); i++ {
		if av.Field(i).CanInterface() {
			if !reflect.DeepEqual(av.Field(i).Interface(), zv.Field(i).Interface()) {
				r = append(r, av.Type().Field(i).Name)
			}
		}
	}
	return r
}

// fieldList takes in a struct and returns a list of all its field names.
// This will panic if "st" is not a struct.
func fieldList(st interface{}) []string {
	v := reflect.TypeOf(st)
	sl := make([]string, v.NumField())
	for i := 0; i < v.NumField(); i++ {
		sl[i] = v.Field(i).Name
	}
	return sl
}

// ShallowCopy makes a copy of a value. On pointers or references, you will
// get a copy of the pointer, not of the underlying value.
func ShallowCopy(i interface{}) interface{} {
	return i
}

// CopyAppendSlice takes a slice, copies the slice into a new slice and
// appends item to the new slice. If slice is not actually a slice or item is
// not the same type as []Type, this will panic.
// It is faster to do this by hand without the reflection.
func CopyAppendSlice(slice interface{}, item interface{}) interface{} {
	i, err := copyAppendSlice(slice, item)
	if err != nil {
		panic(err)
	}
	return i
}

// copyAppendSlice implements CopyAppendSlice, but with an error on a type
// mismatch. This makes it easier to test.
func copyAppendSlice(slice interface{}, item interface{}) (interface{}, error) {
	t := reflect.TypeOf(slice)
	if t.Kind() != reflect.Slice {
		return nil, fmt.Errorf("CopyAppendSlice 'slice' argument was a %s", reflect.TypeOf(slice).Kind())
	}
	if t.Elem().Kind() != reflect.TypeOf(item).Kind() {
		return nil, fmt.Errorf("CopyAppendSlice item is of type %s, but slice is of type %s", t.Elem(), reflect.TypeOf(item).Kind())
	}

	slicev := reflect.ValueOf(slice)
	ns := reflect.MakeSlice(slicev.Type(), slicev.Len()+1, slicev.Len()+1)
	reflect.Copy(ns, slicev)
	ns.Index(slicev.Len()).Set(reflect.ValueOf(item))
	return ns.Interface(), nil
}
