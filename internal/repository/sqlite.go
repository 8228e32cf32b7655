package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/bastago/basta/internal/models"
)

// Repository provides data access methods backed by SQLite
type Repository struct {
	db *sql.DB
}

// New creates a new Repository
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (room deletion cascades to games)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &Repository{db: db}

	if err := repo.migrate(); err != nil {
		return nil, err
	}

	return repo, nil
}

// DB returns the underlying database connection (for transactions)
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate runs database migrations
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			games_played INTEGER NOT NULL DEFAULT 0,
			games_won INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			capacity INTEGER NOT NULL,
			visibility TEXT NOT NULL DEFAULT 'public',
			password TEXT NOT NULL DEFAULT '',
			invite_code TEXT UNIQUE NOT NULL,
			status TEXT NOT NULL DEFAULT 'waiting',
			language TEXT NOT NULL DEFAULT 'en',
			rounds INTEGER NOT NULL DEFAULT 5,
			game_id TEXT,
			expires_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS room_members (
			room_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			username TEXT NOT NULL,
			ready INTEGER NOT NULL DEFAULT 0,
			joined_at DATETIME NOT NULL,
			PRIMARY KEY (room_id, player_id),
			FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT 'en',
			total_rounds INTEGER NOT NULL,
			round INTEGER NOT NULL DEFAULT 1,
			letter TEXT,
			selector_id TEXT NOT NULL,
			category_deadline DATETIME,
			letter_deadline DATETIME,
			validation_deadline DATETIME,
			validation_in_progress INTEGER NOT NULL DEFAULT 0,
			stopped_by TEXT,
			status TEXT NOT NULL DEFAULT 'selecting_categories',
			winner_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS game_players (
			game_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			username TEXT NOT NULL,
			score INTEGER NOT NULL DEFAULT 0,
			disconnected INTEGER NOT NULL DEFAULT 0,
			score_at_disconnect INTEGER NOT NULL DEFAULT 0,
			join_order INTEGER NOT NULL,
			PRIMARY KEY (game_id, player_id),
			FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS game_categories (
			game_id TEXT NOT NULL,
			name TEXT NOT NULL,
			pos INTEGER NOT NULL,
			PRIMARY KEY (game_id, name),
			FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS game_letters (
			game_id TEXT NOT NULL,
			letter TEXT NOT NULL,
			PRIMARY KEY (game_id, letter),
			FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS round_answers (
			game_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			round INTEGER NOT NULL,
			letter TEXT NOT NULL,
			answers TEXT NOT NULL,
			stopped_first INTEGER NOT NULL DEFAULT 0,
			submitted_at DATETIME NOT NULL,
			PRIMARY KEY (game_id, player_id, round),
			FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS game_votes (
			game_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			round INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			PRIMARY KEY (game_id, kind, round, player_id),
			FOREIGN KEY (game_id) REFERENCES games(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_invite ON rooms(invite_code)`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_status ON rooms(status, visibility)`,
		`CREATE INDEX IF NOT EXISTS idx_games_room ON games(room_id)`,
		`CREATE INDEX IF NOT EXISTS idx_answers_round ON round_answers(game_id, round)`,
	}

	for _, m := range migrations {
		if _, err := r.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// ===== Players =====

// UpsertPlayer creates a player stats row or refreshes its username
func (r *Repository) UpsertPlayer(ctx context.Context, id, username string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO players (id, username) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET username = excluded.username`,
		id, username)
	return err
}

// GetPlayer returns a player's durable stats
func (r *Repository) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	var p models.Player
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, games_played, games_won FROM players WHERE id = ?`, id).
		Scan(&p.ID, &p.Username, &p.GamesPlayed, &p.GamesWon)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RecordGamePlayed increments a player's games-played counter and, when won
// is true, the games-won counter. Draws increment games-played only.
func (r *Repository) RecordGamePlayed(ctx context.Context, playerID string, won bool) error {
	wonInc := 0
	if won {
		wonInc = 1
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE players SET games_played = games_played + 1, games_won = games_won + ? WHERE id = ?`,
		wonInc, playerID)
	return err
}

// ===== Rooms =====

// CreateRoom inserts a room and its initial members
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rooms (id, owner_id, capacity, visibility, password, invite_code, status, language, rounds, game_id, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		room.ID, room.OwnerID, room.Capacity, room.Visibility, room.Password,
		room.InviteCode, room.Status, room.Language, room.Rounds, room.GameID, room.ExpiresAt)
	if err != nil {
		return err
	}

	for _, m := range room.Members {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO room_members (room_id, player_id, username, ready, joined_at) VALUES (?, ?, ?, ?, ?)`,
			room.ID, m.PlayerID, m.Username, m.Ready, m.JoinedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *Repository) scanRoom(row *sql.Row) (*models.Room, error) {
	var room models.Room
	var gameID sql.NullString
	err := row.Scan(&room.ID, &room.OwnerID, &room.Capacity, &room.Visibility,
		&room.Password, &room.InviteCode, &room.Status, &room.Language,
		&room.Rounds, &gameID, &room.ExpiresAt, &room.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if gameID.Valid {
		room.GameID = &gameID.String
	}
	return &room, nil
}

func (r *Repository) loadMembers(ctx context.Context, roomID string) ([]models.RoomMember, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT player_id, username, ready, joined_at FROM room_members WHERE room_id = ? ORDER BY rowid`,
		roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.RoomMember
	for rows.Next() {
		var m models.RoomMember
		if err := rows.Scan(&m.PlayerID, &m.Username, &m.Ready, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

const roomColumns = `id, owner_id, capacity, visibility, password, invite_code, status, language, rounds, game_id, expires_at, created_at`

// GetRoom returns a room with its members in join order
func (r *Repository) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	room, err := r.scanRoom(r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	room.Members, err = r.loadMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoomByInviteCode returns a room looked up by its invite code
func (r *Repository) GetRoomByInviteCode(ctx context.Context, code string) (*models.Room, error) {
	room, err := r.scanRoom(r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE invite_code = ?`, code))
	if err != nil {
		return nil, err
	}
	room.Members, err = r.loadMembers(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// ListWaitingRooms returns public waiting rooms with free capacity
func (r *Repository) ListWaitingRooms(ctx context.Context, language string) ([]models.Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms r
		 WHERE visibility = 'public' AND status = 'waiting' AND (? = '' OR language = ?)
		   AND (SELECT COUNT(*) FROM room_members m WHERE m.room_id = r.id) < capacity
		 ORDER BY created_at`, language, language)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.Room
	for rows.Next() {
		var room models.Room
		var gameID sql.NullString
		if err := rows.Scan(&room.ID, &room.OwnerID, &room.Capacity, &room.Visibility,
			&room.Password, &room.InviteCode, &room.Status, &room.Language,
			&room.Rounds, &gameID, &room.ExpiresAt, &room.CreatedAt); err != nil {
			return nil, err
		}
		if gameID.Valid {
			room.GameID = &gameID.String
		}
		result = append(result, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		result[i].Members, err = r.loadMembers(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

// FindJoinableRoom returns the oldest public waiting room with free capacity
// for the given language, or ErrNotFound
func (r *Repository) FindJoinableRoom(ctx context.Context, language string) (*models.Room, error) {
	rooms, err := r.ListWaitingRooms(ctx, language)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return nil, ErrNotFound
	}
	return &rooms[0], nil
}

// AddRoomMember inserts a membership only while the room exists, has free
// capacity, and the player is not already a member. Returns false when the
// conditional insert affected no rows (race lost or precondition failed).
func (r *Repository) AddRoomMember(ctx context.Context, roomID string, member models.RoomMember) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO room_members (room_id, player_id, username, ready, joined_at)
		 SELECT ?, ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM rooms WHERE id = ?)
		   AND NOT EXISTS (SELECT 1 FROM room_members WHERE room_id = ? AND player_id = ?)
		   AND (SELECT COUNT(*) FROM room_members WHERE room_id = ?) <
		       (SELECT capacity FROM rooms WHERE id = ?)`,
		roomID, member.PlayerID, member.Username, member.Ready, member.JoinedAt,
		roomID, roomID, member.PlayerID, roomID, roomID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetMemberReady updates a member's ready flag
func (r *Repository) SetMemberReady(ctx context.Context, roomID, playerID string, ready bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE room_members SET ready = ? WHERE room_id = ? AND player_id = ?`,
		ready, roomID, playerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RemoveRoomMember atomically removes a player from a room. When the room
// empties it is deleted in the same transaction (cascading to its games),
// so no reader can ever observe an empty room. When the owner departs a
// non-empty room, ownership transfers to the member first in join order,
// who is auto-marked ready.
func (r *Repository) RemoveRoomMember(ctx context.Context, roomID, playerID string) (*RemoveMemberResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = ? AND player_id = ?`, roomID, playerID)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Not a member (or already removed by a concurrent leave)
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return &RemoveMemberResult{Removed: false}, nil
	}

	result := &RemoveMemberResult{Removed: true}

	var remaining int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM room_members WHERE room_id = ?`, roomID).Scan(&remaining); err != nil {
		return nil, err
	}
	result.Remaining = remaining

	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, roomID); err != nil {
			return nil, err
		}
		result.RoomDeleted = true
		return result, tx.Commit()
	}

	var ownerID string
	if err := tx.QueryRowContext(ctx,
		`SELECT owner_id FROM rooms WHERE id = ?`, roomID).Scan(&ownerID); err != nil {
		return nil, err
	}
	if ownerID == playerID {
		var nextOwner string
		if err := tx.QueryRowContext(ctx,
			`SELECT player_id FROM room_members WHERE room_id = ? ORDER BY rowid LIMIT 1`,
			roomID).Scan(&nextOwner); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE rooms SET owner_id = ? WHERE id = ?`, nextOwner, roomID); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE room_members SET ready = 1 WHERE room_id = ? AND player_id = ?`,
			roomID, nextOwner); err != nil {
			return nil, err
		}
		result.NewOwnerID = nextOwner
	}

	return result, tx.Commit()
}

// SetRoomStatus transitions a room's status, optionally binding a game.
// Returns false when the room was not in the expected status.
func (r *Repository) SetRoomStatus(ctx context.Context, roomID string, from, to models.RoomStatus, gameID *string) (bool, error) {
	var res sql.Result
	var err error
	if gameID != nil {
		res, err = r.db.ExecContext(ctx,
			`UPDATE rooms SET status = ?, game_id = ? WHERE id = ? AND status = ?`,
			to, *gameID, roomID, from)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE rooms SET status = ? WHERE id = ? AND status = ?`, to, roomID, from)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// TouchRoom refreshes a room's expiry timestamp
func (r *Repository) TouchRoom(ctx context.Context, roomID string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET expires_at = ? WHERE id = ?`, expiresAt, roomID)
	return err
}

// SweepRooms deletes rooms with zero members or an elapsed expiry.
// Safety net behind the synchronous delete in RemoveRoomMember.
func (r *Repository) SweepRooms(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM rooms WHERE expires_at < ?
		 OR NOT EXISTS (SELECT 1 FROM room_members m WHERE m.room_id = rooms.id)`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ===== Games =====

// CreateGame inserts a game session and its player roster
func (r *Repository) CreateGame(ctx context.Context, game *models.GameSession) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO games (id, room_id, language, total_rounds, round, letter, selector_id,
			category_deadline, letter_deadline, validation_deadline, validation_in_progress, stopped_by, status, winner_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		game.ID, game.RoomID, game.Language, game.TotalRounds, game.Round,
		nullIfEmpty(game.Letter), game.SelectorID,
		game.CategoryDeadline, game.LetterDeadline, game.ValidationDeadline,
		game.ValidationInProgress, nullIfEmpty(game.StoppedBy), game.Status, game.WinnerID)
	if err != nil {
		return err
	}

	for _, p := range game.Players {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO game_players (game_id, player_id, username, score, disconnected, score_at_disconnect, join_order)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			game.ID, p.PlayerID, p.Username, p.Score, p.Disconnected, p.ScoreAtDisconnect, p.JoinOrder)
		if err != nil {
			return err
		}
	}
	for i, c := range game.Categories {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO game_categories (game_id, name, pos) VALUES (?, ?, ?)`, game.ID, c, i)
		if err != nil {
			return err
		}
	}
	for _, l := range game.UsedLetters {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO game_letters (game_id, letter) VALUES (?, ?)`, game.ID, l)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// GetGame returns a fully hydrated game session
func (r *Repository) GetGame(ctx context.Context, id string) (*models.GameSession, error) {
	var g models.GameSession
	var letter, stoppedBy, winnerID sql.NullString
	var catDL, letDL, valDL sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, room_id, language, total_rounds, round, letter, selector_id,
			category_deadline, letter_deadline, validation_deadline, validation_in_progress,
			stopped_by, status, winner_id, created_at
		 FROM games WHERE id = ?`, id).
		Scan(&g.ID, &g.RoomID, &g.Language, &g.TotalRounds, &g.Round, &letter,
			&g.SelectorID, &catDL, &letDL, &valDL, &g.ValidationInProgress,
			&stoppedBy, &g.Status, &winnerID, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	g.Letter = letter.String
	g.StoppedBy = stoppedBy.String
	if winnerID.Valid {
		g.WinnerID = &winnerID.String
	}
	if catDL.Valid {
		g.CategoryDeadline = &catDL.Time
	}
	if letDL.Valid {
		g.LetterDeadline = &letDL.Time
	}
	if valDL.Valid {
		g.ValidationDeadline = &valDL.Time
	}

	if g.Categories, err = r.listCategories(ctx, id); err != nil {
		return nil, err
	}
	if g.UsedLetters, err = r.listUsedLetters(ctx, id); err != nil {
		return nil, err
	}
	if g.Players, err = r.listGamePlayers(ctx, id); err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *Repository) listCategories(ctx context.Context, gameID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name FROM game_categories WHERE game_id = ? ORDER BY pos, rowid`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (r *Repository) listUsedLetters(ctx context.Context, gameID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT letter FROM game_letters WHERE game_id = ? ORDER BY rowid`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var letters []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		letters = append(letters, l)
	}
	return letters, rows.Err()
}

func (r *Repository) listGamePlayers(ctx context.Context, gameID string) ([]models.PlayerState, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT player_id, username, score, disconnected, score_at_disconnect, join_order
		 FROM game_players WHERE game_id = ? ORDER BY join_order`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []models.PlayerState
	for rows.Next() {
		var p models.PlayerState
		if err := rows.Scan(&p.PlayerID, &p.Username, &p.Score, &p.Disconnected,
			&p.ScoreAtDisconnect, &p.JoinOrder); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ansRows, err := r.db.QueryContext(ctx,
		`SELECT player_id, round, letter, answers, stopped_first, submitted_at
		 FROM round_answers WHERE game_id = ? ORDER BY round`, gameID)
	if err != nil {
		return nil, err
	}
	defer ansRows.Close()

	byPlayer := make(map[string][]models.RoundAnswer)
	for ansRows.Next() {
		var playerID, answersJSON string
		var ra models.RoundAnswer
		if err := ansRows.Scan(&playerID, &ra.Round, &ra.Letter, &answersJSON,
			&ra.StoppedFirst, &ra.SubmittedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answersJSON), &ra.Answers); err != nil {
			return nil, err
		}
		byPlayer[playerID] = append(byPlayer[playerID], ra)
	}
	if err := ansRows.Err(); err != nil {
		return nil, err
	}
	for i := range players {
		players[i].Answers = byPlayer[players[i].PlayerID]
	}
	return players, nil
}

// AddCategory inserts a category only while it is absent and the set is
// under the cap. Returns false when nothing was added.
func (r *Repository) AddCategory(ctx context.Context, gameID, name string, cap int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO game_categories (game_id, name, pos)
		 SELECT ?, ?, COALESCE((SELECT MAX(pos) + 1 FROM game_categories WHERE game_id = ?), 0)
		 WHERE NOT EXISTS (SELECT 1 FROM game_categories WHERE game_id = ? AND name = ?)
		   AND (SELECT COUNT(*) FROM game_categories WHERE game_id = ?) < ?`,
		gameID, name, gameID, gameID, name, gameID, cap)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountCategories returns the number of categories chosen so far
func (r *Repository) CountCategories(ctx context.Context, gameID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM game_categories WHERE game_id = ?`, gameID).Scan(&n)
	return n, err
}

// AcceptLetter records the round letter, enforcing both the never-reuse rule
// and the one-pick-per-round rule in a single transaction. Returns
// ErrLetterUsed when the letter was already played; returns false when a
// concurrent pick (player action vs. deadline timer) already landed.
func (r *Repository) AcceptLetter(ctx context.Context, gameID, letter string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO game_letters (game_id, letter) VALUES (?, ?)`, gameID, letter)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, ErrLetterUsed
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE games SET letter = ?, category_deadline = NULL, letter_deadline = NULL, validation_deadline = NULL
		 WHERE id = ? AND status = ? AND letter IS NULL`,
		letter, gameID, models.StatusSelectingLetter)
	if err != nil {
		return false, err
	}
	n, err = res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Lost the pick race; leave the letters table untouched
		return false, nil
	}
	return true, tx.Commit()
}

// TransitionStatus flips a game from one status to another, applying the
// patch in the same conditional UPDATE. Returns false when the game was not
// in the expected status; the caller lost the race and must not act.
func (r *Repository) TransitionStatus(ctx context.Context, gameID string, from, to models.GameStatus, patch GamePatch) (bool, error) {
	query := `UPDATE games SET status = ?`
	args := []interface{}{to}

	if patch.Deadlines != nil {
		query += `, category_deadline = ?, letter_deadline = ?, validation_deadline = ?`
		args = append(args, patch.Deadlines.Category, patch.Deadlines.Letter, patch.Deadlines.Validation)
	}
	if patch.Letter != nil {
		query += `, letter = ?`
		args = append(args, nullIfEmpty(*patch.Letter))
	}
	if patch.Round != nil {
		query += `, round = ?`
		args = append(args, *patch.Round)
	}
	if patch.SelectorID != nil {
		query += `, selector_id = ?`
		args = append(args, *patch.SelectorID)
	}
	if patch.StoppedBy != nil {
		query += `, stopped_by = ?`
		args = append(args, nullIfEmpty(*patch.StoppedBy))
	}
	if patch.WinnerID != nil {
		query += `, winner_id = ?`
		args = append(args, *patch.WinnerID)
	}
	if patch.ValidationInProgress != nil {
		query += `, validation_in_progress = ?`
		args = append(args, *patch.ValidationInProgress)
	}

	query += ` WHERE id = ? AND status = ?`
	args = append(args, gameID, from)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// BeginValidation performs the test-and-set that gates the expensive
// validation pass: set the in-progress flag only while it is clear and the
// game is validating. Zero rows affected means a pass is already in flight.
func (r *Repository) BeginValidation(ctx context.Context, gameID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE games SET validation_in_progress = 1
		 WHERE id = ? AND status = ? AND validation_in_progress = 0`,
		gameID, models.StatusValidating)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetPlayerConnection flips a player's disconnected flag. Disconnecting
// snapshots the player's score at that moment.
func (r *Repository) SetPlayerConnection(ctx context.Context, gameID, playerID string, disconnected bool) error {
	var err error
	if disconnected {
		_, err = r.db.ExecContext(ctx,
			`UPDATE game_players SET disconnected = 1, score_at_disconnect = score
			 WHERE game_id = ? AND player_id = ?`, gameID, playerID)
	} else {
		_, err = r.db.ExecContext(ctx,
			`UPDATE game_players SET disconnected = 0 WHERE game_id = ? AND player_id = ?`,
			gameID, playerID)
	}
	return err
}

// ApplyRoundScores accumulates round points into cumulative scores
func (r *Repository) ApplyRoundScores(ctx context.Context, gameID string, scores map[string]int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for playerID, points := range scores {
		if _, err := tx.ExecContext(ctx,
			`UPDATE game_players SET score = score + ? WHERE game_id = ? AND player_id = ?`,
			points, gameID, playerID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ===== Answers =====

// UpsertRoundAnswer stores a player's answer sheet for a round in a single
// atomic statement: replace when one exists for that round, insert
// otherwise. Two racing submissions for the same player/round leave exactly
// one row, last writer wins.
func (r *Repository) UpsertRoundAnswer(ctx context.Context, gameID, playerID string, answer models.RoundAnswer) error {
	answersJSON, err := json.Marshal(answer.Answers)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO round_answers (game_id, player_id, round, letter, answers, stopped_first, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(game_id, player_id, round) DO UPDATE SET
			letter = excluded.letter,
			answers = excluded.answers,
			stopped_first = excluded.stopped_first,
			submitted_at = excluded.submitted_at`,
		gameID, playerID, answer.Round, answer.Letter, string(answersJSON),
		answer.StoppedFirst, answer.SubmittedAt)
	return err
}

// ListRoundAnswers returns every player's answer sheet for a round
func (r *Repository) ListRoundAnswers(ctx context.Context, gameID string, round int) ([]PlayerRoundAnswer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT player_id, round, letter, answers, stopped_first, submitted_at
		 FROM round_answers WHERE game_id = ? AND round = ? ORDER BY submitted_at`,
		gameID, round)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PlayerRoundAnswer
	for rows.Next() {
		var pra PlayerRoundAnswer
		var answersJSON string
		if err := rows.Scan(&pra.PlayerID, &pra.Answer.Round, &pra.Answer.Letter,
			&answersJSON, &pra.Answer.StoppedFirst, &pra.Answer.SubmittedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(answersJSON), &pra.Answer.Answers); err != nil {
			return nil, err
		}
		result = append(result, pra)
	}
	return result, rows.Err()
}

// CountRoundAnswers returns how many players have submitted for a round
func (r *Repository) CountRoundAnswers(ctx context.Context, gameID string, round int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM round_answers WHERE game_id = ? AND round = ?`,
		gameID, round).Scan(&n)
	return n, err
}

// MarkRoundAnswer writes validity and points back onto a stored sheet
func (r *Repository) MarkRoundAnswer(ctx context.Context, gameID, playerID string, round int, answers []models.CategoryAnswer) error {
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE round_answers SET answers = ? WHERE game_id = ? AND player_id = ? AND round = ?`,
		string(answersJSON), gameID, playerID, round)
	return err
}

// ===== Votes =====

// AddVote records a player's vote; duplicate votes are ignored.
// Returns whether a new vote was recorded.
func (r *Repository) AddVote(ctx context.Context, gameID string, kind models.VoteKind, round int, playerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO game_votes (game_id, kind, round, player_id) VALUES (?, ?, ?, ?)`,
		gameID, kind, round, playerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountVotes returns the number of votes of a kind for a round
func (r *Repository) CountVotes(ctx context.Context, gameID string, kind models.VoteKind, round int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM game_votes WHERE game_id = ? AND kind = ? AND round = ?`,
		gameID, kind, round).Scan(&n)
	return n, err
}

// ClearVotes resets a vote. Used when a countdown vote is aborted because a
// participant left mid-countdown.
func (r *Repository) ClearVotes(ctx context.Context, gameID string, kind models.VoteKind, round int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM game_votes WHERE game_id = ? AND kind = ? AND round = ?`,
		gameID, kind, round)
	return err
}
