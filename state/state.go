package state

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// State ids, also reported on the wire as the room lifecycle state.
const (
	StateLobby     = "lobby"
	StateStarting  = "starting"
	StatePlaying   = "playing"
	StateCompleted = "completed"
)

var (
	ErrTransitionNotAllowed = errors.New("state transition not allowed")
	ErrNotHost              = errors.New("only the host may do that")
	ErrNotAllReady          = errors.New("not all members are ready")
	ErrInsufficientPlayers  = errors.New("at least two players are required")
	ErrMatchInProgress      = errors.New("match already in progress")
	ErrNoMatchRunning       = errors.New("no match is running")
	ErrUnknownPlayer        = errors.New("player is not part of this match")
	ErrInvalidTier          = errors.New("hit tier is not a valid window")
)

// StateMachine drives a room through its match lifecycle.
type StateMachine interface {
	ChangeState(state State) error
	GetCurrentState() State
	AddTransition(from State, to State, condition func() bool) error
}

// State is one lifecycle phase. OnUpdate is driven by the room tick;
// HandleEvent ingests gameplay events from members.
type State interface {
	OnEnter()
	OnExit()
	OnUpdate()
	GetID() string
	HandleEvent(playerID uuid.UUID, ev *MatchEvent) error
}

// BaseStateMachine is a guarded-transition state machine. Transitions may
// carry conditions; an unconditioned transition is always allowed.
type BaseStateMachine struct {
	currentState State
	transitions  map[string]map[string]func() bool // fromState -> toState -> condition
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[string]map[string]func() bool),
	}
	initialState.OnEnter()
	return machine
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()

	currentID := sm.currentState.GetID()
	newID := newState.GetID()

	if conditions, exists := sm.transitions[currentID]; exists {
		if condition, exists := conditions[newID]; exists {
			if condition != nil && !condition() {
				sm.mutex.Unlock()
				return ErrTransitionNotAllowed
			}
		}
	}

	old := sm.currentState
	sm.currentState = newState
	// Callbacks run outside the machine lock: OnEnter may broadcast, and
	// broadcasting takes locks of its own.
	sm.mutex.Unlock()

	old.OnExit()
	newState.OnEnter()

	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from State, to State, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	fromID := from.GetID()
	toID := to.GetID()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[string]func() bool)
	}

	sm.transitions[fromID][toID] = condition
	return nil
}

// RoomStateBase carries the room context and id shared by every state.
type RoomStateBase struct {
	ID   string
	Room RoomContext
}

func (s *RoomStateBase) GetID() string {
	return s.ID
}

func (s *RoomStateBase) OnEnter() {}

func (s *RoomStateBase) OnExit() {}

func (s *RoomStateBase) OnUpdate() {}

func (s *RoomStateBase) HandleEvent(playerID uuid.UUID, ev *MatchEvent) error {
	return ErrNoMatchRunning
}
