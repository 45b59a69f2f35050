package navigation

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// View is the closed set of top-level screens. Anything outside this set is
// rejected before it can reach the restart cache.
type View string

const (
	ViewHome          View = "home"
	ViewExplore       View = "explore"
	ViewPost          View = "post"
	ViewEdit          View = "edit"
	ViewProfile       View = "profile"
	ViewNotifications View = "notifications"
	ViewChat          View = "chat"
	ViewSinglePost    View = "singlePost"
)

var (
	ErrInvalidView   = errors.New("invalid view")
	ErrEditNeedsPost = errors.New("edit requires a post")
	ErrInvalidStep   = errors.New("invalid drawer step")
	ErrInvalidTab    = errors.New("invalid activity tab")
)

// ParseView validates a raw view name.
func ParseView(raw string) (View, error) {
	switch v := View(raw); v {
	case ViewHome, ViewExplore, ViewPost, ViewEdit, ViewProfile,
		ViewNotifications, ViewChat, ViewSinglePost:
		return v, nil
	}
	return "", ErrInvalidView
}

// Step is a drawer screen. The drawer is a star: every leaf goes back to main.
type Step string

const (
	StepMain     Step = "main"
	StepSettings Step = "settings"
	StepBlocked  Step = "blocked"
	StepActivity Step = "activity"
)

// Tab selects which half of the activity leaf is shown. The tabs are
// mutually exclusive.
type Tab string

const (
	TabLikes    Tab = "likes"
	TabComments Tab = "comments"
)

// ParseTab validates a raw activity tab name.
func ParseTab(raw string) (Tab, error) {
	switch t := Tab(raw); t {
	case TabLikes, TabComments:
		return t, nil
	}
	return "", ErrInvalidTab
}

// Drawer is the side-drawer step machine. Zero value = closed at main.
type Drawer struct {
	Open bool `json:"open"`
	Step Step `json:"step"`
	Tab  Tab  `json:"tab"`
}

func newDrawer() Drawer {
	return Drawer{Open: false, Step: StepMain, Tab: TabLikes}
}

// Go moves from main to a leaf. Leaves do not link to each other.
func (d Drawer) Go(step Step) (Drawer, error) {
	switch step {
	case StepSettings, StepBlocked, StepActivity:
	default:
		return d, ErrInvalidStep
	}
	if d.Step != StepMain {
		return d, ErrInvalidStep
	}
	d.Step = step
	return d, nil
}

// Back returns from any leaf to main; from main it closes the drawer.
func (d Drawer) Back() Drawer {
	if d.Step != StepMain {
		d.Step = StepMain
		return d
	}
	d.Open = false
	return d
}

// State is the full navigation position: the active view, its payloads, and
// the drawer. It is what the restart cache persists.
type State struct {
	View       View   `json:"view"`
	Profile    string `json:"profile,omitempty"`
	ChatID     string `json:"chat_id,omitempty"`
	PostID     int    `json:"post_id,omitempty"`
	EditPostID int    `json:"edit_post_id,omitempty"`
	Drawer     Drawer `json:"drawer"`
}

// NewState is the position of a fresh session.
func NewState() State {
	return State{View: ViewHome, Drawer: newDrawer()}
}

// Input carries a transition request. Chat distinguishes three intents:
// nil leaves the open conversation untouched, a pointer to "" closes it, and
// a pointer to an id opens that conversation.
type Input struct {
	View       View
	Profile    string
	Chat       *string
	PostID     int
	EditPostID int
}

// CloseChat is the explicit close sentinel for Input.Chat.
func CloseChat() *string {
	empty := ""
	return &empty
}

// OpenChat points Input.Chat at a conversation id.
func OpenChat(chatID string) *string {
	return &chatID
}

// Transition applies one navigation input. Invalid inputs leave the state
// untouched. Every successful transition closes the drawer and resets it to
// main, matching the rule that overlays never survive a screen change.
func Transition(s State, in Input) (State, error) {
	if _, err := ParseView(string(in.View)); err != nil {
		return s, err
	}

	next := s
	next.View = in.View
	next.Profile = in.Profile
	next.PostID = in.PostID

	switch in.View {
	case ViewEdit:
		if in.EditPostID == 0 {
			return s, ErrEditNeedsPost
		}
		next.EditPostID = in.EditPostID
	case ViewPost:
		// Opening the composer always starts from a blank post.
		next.EditPostID = 0
	default:
		next.EditPostID = s.EditPostID
	}

	if in.Chat != nil {
		next.ChatID = *in.Chat
	}
	if in.View == ViewChat && next.ChatID == "" && in.Chat == nil {
		next.ChatID = s.ChatID
	}

	next.Drawer = newDrawer()
	return next, nil
}

// ActivityFetcher serializes activity-tab loads. Each request bumps the
// generation; a result carrying an older generation is stale and must be
// discarded, so the last requested tab always wins regardless of response
// order.
type ActivityFetcher struct {
	mu         sync.Mutex
	generation uint64
	tab        Tab
}

func NewActivityFetcher() *ActivityFetcher {
	return &ActivityFetcher{tab: TabLikes}
}

// Request records a tab switch and returns the generation token the caller
// must present with the result.
func (f *ActivityFetcher) Request(tab Tab) (uint64, error) {
	if _, err := ParseTab(string(tab)); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	f.tab = tab
	return f.generation, nil
}

// Accept reports whether a result for the given generation is still current.
func (f *ActivityFetcher) Accept(generation uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return generation == f.generation
}

// Tab returns the last requested tab.
func (f *ActivityFetcher) Tab() Tab {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tab
}

// Store persists navigation state per user so a restart resumes where the
// session left off.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save upserts the user's resumable position. The drawer is deliberately not
// persisted; overlays never survive a restart.
func (s *Store) Save(username string, state State) error {
	_, err := s.db.Exec(`
		INSERT INTO view_states (username, view, profile, chat_id, post_id, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(username) DO UPDATE SET
			view = excluded.view,
			profile = excluded.profile,
			chat_id = excluded.chat_id,
			post_id = excluded.post_id,
			updated_at = CURRENT_TIMESTAMP
	`, username, string(state.View), state.Profile, state.ChatID, state.PostID)
	if err != nil {
		return fmt.Errorf("failed to save view state: %w", err)
	}
	return nil
}

// Load returns the saved position, or the home state when none exists or the
// stored view no longer parses.
func (s *Store) Load(username string) (State, error) {
	var (
		raw     string
		profile sql.NullString
		chatID  sql.NullString
		postID  sql.NullInt64
	)
	err := s.db.QueryRow(
		"SELECT view, profile, chat_id, post_id FROM view_states WHERE username = ?",
		username,
	).Scan(&raw, &profile, &chatID, &postID)
	if err == sql.ErrNoRows {
		return NewState(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to load view state: %w", err)
	}

	view, err := ParseView(raw)
	if err != nil {
		return NewState(), nil
	}
	return State{
		View:    view,
		Profile: profile.String,
		ChatID:  chatID.String,
		PostID:  int(postID.Int64),
		Drawer:  newDrawer(),
	}, nil
}
