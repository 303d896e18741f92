package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"olx-scraper/models"
	"olx-scraper/storage"
	"olx-scraper/utils"
)

// nonPhoneRe strips everything that is not a digit or a plus sign.
var nonPhoneRe = regexp.MustCompile(`[^0-9+]`)

// Linker attaches persisted cars to seller users keyed by phone number. A
// seller is created on first sight and reused for every later car.
type Linker struct {
	users  storage.UserStore
	cars   storage.RecordStore
	logger *utils.Logger
}

func NewLinker(users storage.UserStore, cars storage.RecordStore, logger *utils.Logger) *Linker {
	return &Linker{users: users, cars: cars, logger: logger}
}

// LinkResult reports which user a car ended up attached to.
type LinkResult struct {
	UserID  int64
	Created bool
}

// Link resolves the seller behind phone, creating it when unseen, attaches
// the car and refreshes the seller's car count. Failures come back as
// LinkError; the car itself stays persisted regardless.
func (l *Linker) Link(carID int64, phone, name, city string) (*LinkResult, error) {
	normalized, err := normalizePhone(phone)
	if err != nil {
		return nil, &models.LinkError{Phone: phone, Err: err}
	}

	user, err := l.users.FindByPhone(normalized)
	if err != nil {
		return nil, &models.LinkError{Phone: normalized, Err: err}
	}

	res := &LinkResult{}
	if user == nil {
		now := time.Now().UTC()
		id, err := l.users.Create(&models.User{
			Phone:     normalized,
			Name:      name,
			City:      city,
			FirstSeen: now,
			LastSeen:  now,
		})
		if err != nil {
			return nil, &models.LinkError{Phone: normalized, Err: err}
		}
		res.UserID = id
		res.Created = true
		l.logger.Info("[linker] New seller %s — user %d", normalized, id)
	} else {
		res.UserID = user.ID
		if err := l.users.Touch(user.ID); err != nil {
			l.logger.Warn("[linker] Touch user %d failed: %v", user.ID, err)
		}
	}

	if err := l.cars.LinkUser(carID, res.UserID); err != nil {
		return nil, &models.LinkError{Phone: normalized, Err: err}
	}

	if count, err := l.cars.CountByUser(res.UserID); err != nil {
		l.logger.Warn("[linker] Count cars for user %d failed: %v", res.UserID, err)
	} else if err := l.users.SetCarCount(res.UserID, count); err != nil {
		l.logger.Warn("[linker] Update car count for user %d failed: %v", res.UserID, err)
	}

	return res, nil
}

// normalizePhone canonicalizes Portuguese numbers to +351XXXXXXXXX. Numbers
// already carrying a country code keep it.
func normalizePhone(raw string) (string, error) {
	cleaned := nonPhoneRe.ReplaceAllString(raw, "")
	international := strings.HasPrefix(cleaned, "+")
	digits := strings.ReplaceAll(cleaned, "+", "")

	switch {
	case digits == "":
		return "", fmt.Errorf("no digits in %q", raw)
	case len(digits) == 9 && (digits[0] == '9' || digits[0] == '2'):
		return "+351" + digits, nil
	case len(digits) == 12 && strings.HasPrefix(digits, "351"):
		return "+" + digits, nil
	case international && len(digits) >= 10 && len(digits) <= 15:
		return "+" + digits, nil
	}
	return "", fmt.Errorf("unrecognized phone %q", raw)
}
