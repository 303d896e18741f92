package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"olx-scraper/models"
)

// Postgres persists cars and users in PostgreSQL. One instance (and its
// connection pool) is shared by all items of a run.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection to PostgreSQL, runs schema migrations, and
// returns a ready-to-use store.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	p := &Postgres{db: db}
	if err := p.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return p, nil
}

func (p *Postgres) migrate() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id           SERIAL PRIMARY KEY,
			phone_number TEXT UNIQUE NOT NULL,
			name         TEXT NOT NULL DEFAULT '',
			city         TEXT NOT NULL DEFAULT '',
			first_seen   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_seen    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			total_cars   INT NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS cars (
			id                 SERIAL PRIMARY KEY,
			url                TEXT UNIQUE NOT NULL,
			website            VARCHAR(50) NOT NULL DEFAULT 'olx.pt',
			listing_id         TEXT,
			title              TEXT NOT NULL,
			brand              TEXT,
			model              TEXT,
			year               INT,
			price              NUMERIC(12,2),
			price_raw          TEXT,
			price_negotiable   BOOLEAN,
			mileage            INT,
			mileage_raw        TEXT,
			fuel_type          TEXT,
			transmission       TEXT,
			power              INT,
			power_raw          TEXT,
			engine_size        INT,
			doors              INT,
			seats              INT,
			color              TEXT,
			body_type          TEXT,
			condition          TEXT,
			location           TEXT,
			city               TEXT,
			district           TEXT,
			description        TEXT,
			features           TEXT[],
			images             JSONB,
			main_image         TEXT,
			publication_date   TIMESTAMPTZ,
			seller_name        TEXT,
			seller_type        TEXT,
			phone_number       TEXT,
			phone_available    BOOLEAN,
			first_registration TEXT,
			inspection         TEXT,
			origin             TEXT,
			category           TEXT,
			user_id            INT REFERENCES users(id),
			scraped_at         TIMESTAMPTZ NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_cars_brand   ON cars(brand);
		CREATE INDEX IF NOT EXISTS idx_cars_price   ON cars(price);
		CREATE INDEX IF NOT EXISTS idx_cars_city    ON cars(city);
		CREATE INDEX IF NOT EXISTS idx_cars_user_id ON cars(user_id);
	`)
	return err
}

// Save inserts a car, or returns the existing row's id when the URL is
// already stored. The column list is built from Fields(), so absent optional
// columns never appear in the statement.
func (p *Postgres) Save(car *models.Car) (int64, bool, error) {
	fields := car.Fields()

	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		val, err := toColumnValue(fields[col])
		if err != nil {
			return 0, false, &models.PersistenceError{Op: "encode " + col, Err: err}
		}
		args[i] = val
	}

	query := fmt.Sprintf(`
		INSERT INTO cars (%s)
		VALUES (%s)
		ON CONFLICT (url) DO NOTHING
		RETURNING id
	`, strings.Join(cols, ", "), strings.Join(placeholders, ","))

	var id int64
	err := p.db.QueryRow(query, args...).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, &models.PersistenceError{Op: "insert car", Err: err}
	}

	// Conflict path: the URL is already stored.
	if err := p.db.QueryRow("SELECT id FROM cars WHERE url = $1", car.URL).Scan(&id); err != nil {
		return 0, false, &models.PersistenceError{Op: "lookup existing car", Err: err}
	}
	return id, true, nil
}

func toColumnValue(v any) (any, error) {
	switch val := v.(type) {
	case models.ImageSet:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return b, nil
	case []string:
		return pq.Array(val), nil
	default:
		return v, nil
	}
}

// UpdateImages replaces a stored car's image set. This is the only column
// ever rewritten after insert.
func (p *Postgres) UpdateImages(id int64, images models.ImageSet) error {
	b, err := json.Marshal(images)
	if err != nil {
		return &models.PersistenceError{Op: "encode images", Err: err}
	}
	if _, err := p.db.Exec("UPDATE cars SET images = $1 WHERE id = $2", b, id); err != nil {
		return &models.PersistenceError{Op: "update images", Err: err}
	}
	return nil
}

// LinkUser points a stored car at its seller entity.
func (p *Postgres) LinkUser(carID, userID int64) error {
	if _, err := p.db.Exec("UPDATE cars SET user_id = $1 WHERE id = $2", userID, carID); err != nil {
		return &models.PersistenceError{Op: "link user", Err: err}
	}
	return nil
}

// CountByUser returns how many stored cars belong to the given user.
func (p *Postgres) CountByUser(userID int64) (int, error) {
	var n int
	if err := p.db.QueryRow("SELECT COUNT(*) FROM cars WHERE user_id = $1", userID).Scan(&n); err != nil {
		return 0, &models.PersistenceError{Op: "count cars", Err: err}
	}
	return n, nil
}

// FetchAll retrieves the columns the report service works with.
func (p *Postgres) FetchAll() ([]*models.Car, error) {
	rows, err := p.db.Query(`
		SELECT id, url, title, brand, model, year, price, mileage, fuel_type, city, scraped_at
		FROM cars
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var cars []*models.Car
	for rows.Next() {
		c := &models.Car{}
		var (
			brand, model, fuel, city sql.NullString
			year, mileage            sql.NullInt64
			price                    sql.NullFloat64
		)
		if err := rows.Scan(
			&c.ID, &c.URL, &c.Title, &brand, &model, &year,
			&price, &mileage, &fuel, &city, &c.ScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		c.Brand = brand.String
		c.Model = model.String
		c.FuelType = fuel.String
		c.City = city.String
		if year.Valid {
			y := int(year.Int64)
			c.Year = &y
		}
		if mileage.Valid {
			m := int(mileage.Int64)
			c.Mileage = &m
		}
		if price.Valid {
			v := price.Float64
			c.Price = &v
		}
		cars = append(cars, c)
	}
	return cars, rows.Err()
}

// FindByPhone returns the user with the given normalized phone, or nil when
// none exists.
func (p *Postgres) FindByPhone(phone string) (*models.User, error) {
	u := &models.User{}
	err := p.db.QueryRow(`
		SELECT id, phone_number, name, city, first_seen, last_seen, total_cars
		FROM users
		WHERE phone_number = $1
	`, phone).Scan(&u.ID, &u.Phone, &u.Name, &u.City, &u.FirstSeen, &u.LastSeen, &u.TotalCars)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &models.PersistenceError{Op: "find user", Err: err}
	}
	return u, nil
}

// Create inserts a user. Racing creates of the same phone converge on the
// stored row.
func (p *Postgres) Create(u *models.User) (int64, error) {
	var id int64
	err := p.db.QueryRow(`
		INSERT INTO users (phone_number, name, city, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (phone_number) DO UPDATE SET last_seen = EXCLUDED.last_seen
		RETURNING id
	`, u.Phone, u.Name, u.City, u.FirstSeen, u.LastSeen).Scan(&id)
	if err != nil {
		return 0, &models.PersistenceError{Op: "create user", Err: err}
	}
	return id, nil
}

// Touch refreshes a user's last-seen timestamp.
func (p *Postgres) Touch(id int64) error {
	if _, err := p.db.Exec("UPDATE users SET last_seen = NOW() WHERE id = $1", id); err != nil {
		return &models.PersistenceError{Op: "touch user", Err: err}
	}
	return nil
}

// SetCarCount stores a user's recomputed car count.
func (p *Postgres) SetCarCount(id int64, total int) error {
	if _, err := p.db.Exec("UPDATE users SET total_cars = $1 WHERE id = $2", total, id); err != nil {
		return &models.PersistenceError{Op: "update user stats", Err: err}
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
