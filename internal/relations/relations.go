package relations

import (
	"database/sql"
	"fmt"
)

// Store derives visibility from the block and follow tables. The
// hidden-from-me set is the union of users I blocked and users who blocked
// me; every listing and search surface filters through it.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Hidden returns blocked ∪ blockedBy for the user, sorted by username.
func (s *Store) Hidden(me string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT blocked FROM user_blocks WHERE blocker = ?
		UNION
		SELECT blocker FROM user_blocks WHERE blocked = ?
		ORDER BY 1
	`, me, me)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	var hidden []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan block row: %w", err)
		}
		hidden = append(hidden, name)
	}
	return hidden, rows.Err()
}

// Blocked returns only the users I blocked directly, for the settings list.
func (s *Store) Blocked(me string) ([]string, error) {
	rows, err := s.db.Query("SELECT blocked FROM user_blocks WHERE blocker = ? ORDER BY blocked", me)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	var blocked []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan block row: %w", err)
		}
		blocked = append(blocked, name)
	}
	return blocked, rows.Err()
}

// IsBlockedBy reports whether owner has blocked viewer. Used to answer a
// profile fetch with "unavailable" instead of content.
func (s *Store) IsBlockedBy(viewer, owner string) (bool, error) {
	var blocked bool
	err := s.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM user_blocks WHERE blocker = ? AND blocked = ?)",
		owner, viewer,
	).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("failed to query blocks: %w", err)
	}
	return blocked, nil
}

// IsHiddenFrom reports whether either side of the pair blocked the other.
func (s *Store) IsHiddenFrom(me, other string) (bool, error) {
	var hidden bool
	err := s.db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM user_blocks
			WHERE (blocker = ? AND blocked = ?) OR (blocker = ? AND blocked = ?)
		)
	`, me, other, other, me).Scan(&hidden)
	if err != nil {
		return false, fmt.Errorf("failed to query blocks: %w", err)
	}
	return hidden, nil
}

// Block records me blocking target and severs any follow relationship in
// both directions. All writes share one transaction so the two sides of the
// relation can never diverge.
func (s *Store) Block(me, target string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin block: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT OR IGNORE INTO user_blocks (blocker, blocked) VALUES (?, ?)", me, target,
	); err != nil {
		return fmt.Errorf("failed to insert block: %w", err)
	}
	if _, err := tx.Exec(
		"DELETE FROM user_follows WHERE (follower = ? AND followee = ?) OR (follower = ? AND followee = ?)",
		me, target, target, me,
	); err != nil {
		return fmt.Errorf("failed to sever follows: %w", err)
	}

	return tx.Commit()
}

// Unblock removes the block row. The reverse visibility entry is the same
// row read from the other side, so both "my blocked list" and the target's
// "blockedBy" view clear together.
func (s *Store) Unblock(me, target string) error {
	_, err := s.db.Exec("DELETE FROM user_blocks WHERE blocker = ? AND blocked = ?", me, target)
	if err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	return nil
}

// ToggleFollow flips the follow edge me→target and reports the new state.
func (s *Store) ToggleFollow(me, target string) (bool, error) {
	var following bool
	err := s.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM user_follows WHERE follower = ? AND followee = ?)",
		me, target,
	).Scan(&following)
	if err != nil {
		return false, fmt.Errorf("failed to query follow: %w", err)
	}

	if following {
		_, err = s.db.Exec("DELETE FROM user_follows WHERE follower = ? AND followee = ?", me, target)
	} else {
		_, err = s.db.Exec("INSERT INTO user_follows (follower, followee) VALUES (?, ?)", me, target)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update follow: %w", err)
	}
	return !following, nil
}

// FollowCounts returns follower and following counts for a user.
func (s *Store) FollowCounts(username string) (followers, following int, err error) {
	err = s.db.QueryRow("SELECT COUNT(*) FROM user_follows WHERE followee = ?", username).Scan(&followers)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count followers: %w", err)
	}
	err = s.db.QueryRow("SELECT COUNT(*) FROM user_follows WHERE follower = ?", username).Scan(&following)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count following: %w", err)
	}
	return followers, following, nil
}
