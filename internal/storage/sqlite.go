package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tazhate/contactbook/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER UNIQUE NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'owner',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS persons (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			phone TEXT DEFAULT '',
			email TEXT DEFAULT '',
			address TEXT DEFAULT '',
			role TEXT NOT NULL DEFAULT 'contact',
			notes TEXT DEFAULT '',
			tags TEXT DEFAULT '[]',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_persons_user_id ON persons(user_id)`,
		// Schedule rows; position keeps insertion order
		`CREATE TABLE IF NOT EXISTS schedule_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			person_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			description TEXT NOT NULL,
			date TEXT NOT NULL,
			time TEXT NOT NULL,
			duration_hours REAL NOT NULL,
			FOREIGN KEY (person_id) REFERENCES persons(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_events_person ON schedule_events(person_id, position)`,
		// CalDAV export bookkeeping
		`ALTER TABLE persons ADD COLUMN exported_at DATETIME`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// Ignore "duplicate column" errors for ALTER TABLE
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("exec migration: %w", err)
			}
		}
	}
	return nil
}

// === Users ===

func (s *Storage) CreateUser(u *domain.User) error {
	res, err := s.db.Exec(
		`INSERT INTO users (telegram_id, name, role) VALUES (?, ?, ?)`,
		u.TelegramID, u.Name, u.Role,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	u.ID = id
	u.CreatedAt = time.Now()
	return nil
}

func (s *Storage) GetUserByTelegramID(telegramID int64) (*domain.User, error) {
	u := &domain.User{}
	err := s.db.QueryRow(
		`SELECT id, telegram_id, name, role, created_at FROM users WHERE telegram_id = ?`,
		telegramID,
	).Scan(&u.ID, &u.TelegramID, &u.Name, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// === Persons ===

const personColumns = `id, user_id, name, phone, email, address, role, notes, tags, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerson(row rowScanner) (*domain.Person, error) {
	p := &domain.Person{}
	var tags string
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Phone, &p.Email, &p.Address, &p.Role, &p.Notes, &tags, &p.CreatedAt); err != nil {
		return nil, err
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of person %d: %w", p.ID, err)
		}
	}
	p.Schedule = domain.EmptySchedule
	return p, nil
}

func tagsJSON(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, _ := json.Marshal(tags)
	return string(data)
}

// CreatePerson inserts the person together with its schedule
func (s *Storage) CreatePerson(p *domain.Person) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO persons (user_id, name, phone, email, address, role, notes, tags) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Name, p.Phone, p.Email, p.Address, p.Role, p.Notes, tagsJSON(p.Tags),
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()

	if err := replaceSchedule(tx, id, p.Schedule); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	p.ID = id
	p.CreatedAt = time.Now()
	return nil
}

func (s *Storage) GetPerson(id int64) (*domain.Person, error) {
	p, err := scanPerson(s.db.QueryRow(`SELECT `+personColumns+` FROM persons WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadSchedules([]*domain.Person{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPersonsByUser returns the persons of a user ordered by name, with schedules
func (s *Storage) ListPersonsByUser(userID int64) ([]*domain.Person, error) {
	rows, err := s.db.Query(
		`SELECT `+personColumns+` FROM persons WHERE user_id = ? ORDER BY name COLLATE NOCASE ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var persons []*domain.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.loadSchedules(persons); err != nil {
		return nil, err
	}
	return persons, nil
}

// UpdatePerson stores a new snapshot of the person. The schedule is
// replaced as a whole.
func (s *Storage) UpdatePerson(p *domain.Person) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE persons SET name = ?, phone = ?, email = ?, address = ?, role = ?, notes = ?, tags = ? WHERE id = ?`,
		p.Name, p.Phone, p.Email, p.Address, p.Role, p.Notes, tagsJSON(p.Tags), p.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("person %d not found", p.ID)
	}

	if err := replaceSchedule(tx, p.ID, p.Schedule); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) DeletePerson(id int64) error {
	_, err := s.db.Exec(`DELETE FROM persons WHERE id = ?`, id)
	return err
}

// MarkPersonExported records the last CalDAV export of a person
func (s *Storage) MarkPersonExported(id int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE persons SET exported_at = ? WHERE id = ?`, at, id)
	return err
}

// === Schedules ===

func replaceSchedule(tx *sql.Tx, personID int64, schedule domain.Schedule) error {
	if _, err := tx.Exec(`DELETE FROM schedule_events WHERE person_id = ?`, personID); err != nil {
		return fmt.Errorf("clear schedule: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO schedule_events (person_id, position, description, date, time, duration_hours) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range schedule.Events() {
		if _, err := stmt.Exec(personID, i, e.Description(), e.Date().Format(domain.DateLayout), e.Time().String(), e.DurationHours()); err != nil {
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}
	return nil
}

// loadSchedules fills the Schedule of each person from schedule_events.
// Rows go through domain validation, so a corrupted row is reported
// instead of being loaded.
func (s *Storage) loadSchedules(persons []*domain.Person) error {
	if len(persons) == 0 {
		return nil
	}

	byID := make(map[int64]*domain.Person, len(persons))
	placeholders := make([]string, 0, len(persons))
	args := make([]any, 0, len(persons))
	for _, p := range persons {
		byID[p.ID] = p
		placeholders = append(placeholders, "?")
		args = append(args, p.ID)
	}

	rows, err := s.db.Query(
		`SELECT person_id, description, date, time, duration_hours FROM schedule_events
		 WHERE person_id IN (`+strings.Join(placeholders, ",")+`) ORDER BY person_id, position`,
		args...,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	events := make(map[int64][]domain.Event, len(persons))
	for rows.Next() {
		var (
			personID          int64
			desc, date, clock string
			hours             float64
		)
		if err := rows.Scan(&personID, &desc, &date, &clock, &hours); err != nil {
			return err
		}

		d, err := domain.ParseDate(date)
		if err != nil {
			return fmt.Errorf("person %d: %w", personID, err)
		}
		at, err := domain.ParseTimeOfDay(clock)
		if err != nil {
			return fmt.Errorf("person %d: %w", personID, err)
		}
		e, err := domain.NewEvent(desc, d, at, hours)
		if err != nil {
			return fmt.Errorf("person %d: %w", personID, err)
		}

		events[personID] = append(events[personID], e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for id, p := range byID {
		p.Schedule = domain.NewSchedule(events[id]...)
	}
	return nil
}
