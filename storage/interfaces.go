package storage

import "olx-scraper/models"

// RecordStore persists normalized cars keyed by their unique URL.
type RecordStore interface {
	Save(car *models.Car) (id int64, existed bool, err error)
	UpdateImages(id int64, images models.ImageSet) error
	LinkUser(carID, userID int64) error
	CountByUser(userID int64) (int, error)
	FetchAll() ([]*models.Car, error)
	Close() error
}

// UserStore resolves seller entities keyed by normalized phone number.
type UserStore interface {
	FindByPhone(phone string) (*models.User, error)
	Create(u *models.User) (int64, error)
	Touch(id int64) error
	SetCarCount(id int64, total int) error
}

// ObjectStore accepts binary assets and returns a public URL per key.
type ObjectStore interface {
	Put(key string, data []byte, contentType string) (string, error)
}
